package sessionstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedMemory_WriteOnce(t *testing.T) {
	m := NewSharedMemory()

	assert.True(t, m.Set(KeyAccountNumber, "12345678"))
	// second write does not clobber the fact
	assert.False(t, m.Set(KeyAccountNumber, "00000000"))
	assert.Equal(t, "12345678", m.GetString(KeyAccountNumber))
}

func TestSharedMemory_RejectsEmptyValues(t *testing.T) {
	m := NewSharedMemory()

	assert.False(t, m.Set(KeySortCode, ""))
	assert.False(t, m.Set(KeySortCode, nil))
	_, ok := m.Get(KeySortCode)
	assert.False(t, ok)
}

func TestSharedMemory_ClearAllowsRewrite(t *testing.T) {
	m := NewSharedMemory()

	m.Set(KeyUserIntent, "check_balance")
	m.Clear(KeyUserIntent)
	assert.True(t, m.Set(KeyUserIntent, "get_transactions"))
	assert.Equal(t, "get_transactions", m.GetString(KeyUserIntent))
}

func TestSharedMemory_SnapshotIsACopy(t *testing.T) {
	m := NewSharedMemory()
	m.Set(KeyVerified, true)

	snap := m.Snapshot()
	snap[KeyVerified] = false
	assert.True(t, m.GetBool(KeyVerified))
}

func TestTranscript_UpsertReplacesSameTurnID(t *testing.T) {
	tr := NewTranscript()

	tr.Upsert(TurnRecord{TurnID: "s:a:assistant:1", Role: "assistant", Text: "One mom", Final: false})
	tr.Upsert(TurnRecord{TurnID: "s:a:assistant:1", Role: "assistant", Text: "One moment please", Final: true})

	require.Equal(t, 1, tr.Len())
	rec := tr.Records()[0]
	assert.Equal(t, "One moment please", rec.Text)
	assert.True(t, rec.Final)
}

func TestTranscript_DistinctTurnsAppend(t *testing.T) {
	tr := NewTranscript()

	tr.Upsert(TurnRecord{TurnID: "a", Role: "user", Text: "hi"})
	tr.Upsert(TurnRecord{TurnID: "b", Role: "assistant", Text: "hello"})

	assert.Equal(t, 2, tr.Len())
}

func TestSession_TurnIDStableWithinTurn(t *testing.T) {
	s := NewSession("sess-1", "triage")
	s.BeginTurn()

	id1 := s.TurnID("assistant")
	id2 := s.TurnID("assistant")
	assert.Equal(t, id1, id2)

	s.BeginTurn()
	assert.NotEqual(t, id1, s.TurnID("assistant"))
}

func TestSession_LedgerCounts(t *testing.T) {
	s := NewSession("sess-1", "triage")
	turn := s.BeginTurn()

	assert.Equal(t, 1, s.RecordAttempt("check_balance", turn))
	assert.Equal(t, 2, s.RecordAttempt("check_balance", turn))
	assert.Equal(t, 1, s.RecordAttempt("check_balance", turn+1))
	assert.Equal(t, 3, s.ToolAttemptsInSession("check_balance"))
}

func TestSession_MarkHandoffBumpsGeneration(t *testing.T) {
	s := NewSession("sess-1", "triage")
	turn := s.BeginTurn()

	gen := s.Generation
	assert.False(t, s.HandoffDoneThisTurn(turn))
	s.MarkHandoff(turn)
	assert.True(t, s.HandoffDoneThisTurn(turn))
	assert.Equal(t, gen+1, s.Generation)
}
