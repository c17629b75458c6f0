package breaker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calloway/switchboard/pkg/sessionstore"
)

func TestHashArgs_StableAcrossKeyOrder(t *testing.T) {
	a := HashArgs(map[string]interface{}{"account_number": "12345678", "sort_code": "112233"})
	b := HashArgs(map[string]interface{}{"sort_code": "112233", "account_number": "12345678"})
	assert.Equal(t, a, b)

	c := HashArgs(map[string]interface{}{"account_number": "00000000", "sort_code": "112233"})
	assert.NotEqual(t, a, c)
}

func TestShouldAllow_DuplicateWithinTurnSuppressed(t *testing.T) {
	b := New(5)
	s := sessionstore.NewSession("sess-1", "triage")
	turn := s.BeginTurn()
	hash := HashArgs(map[string]interface{}{"account_number": "12345678"})

	require.Equal(t, DecisionAllow, b.ShouldAllow(s, "verify_identity", hash, turn))
	s.RecordAttempt("verify_identity", turn)
	b.StoreResult(s, "verify_identity", hash, turn, "cached")

	assert.Equal(t, DecisionSuppressDuplicate, b.ShouldAllow(s, "verify_identity", hash, turn))

	replayed, ok := b.Replay(s, "verify_identity", hash, turn)
	require.True(t, ok)
	assert.Equal(t, "cached", replayed)
}

func TestShouldAllow_SameArgsNextTurnAllowed(t *testing.T) {
	b := New(5)
	s := sessionstore.NewSession("sess-1", "triage")
	hash := HashArgs(nil)

	turn := s.BeginTurn()
	require.Equal(t, DecisionAllow, b.ShouldAllow(s, "check_balance", hash, turn))
	s.RecordAttempt("check_balance", turn)
	b.StoreResult(s, "check_balance", hash, turn, "r1")

	next := s.BeginTurn()
	assert.Equal(t, DecisionAllow, b.ShouldAllow(s, "check_balance", hash, next))
}

func TestShouldAllow_CircuitBreaksAtCeiling(t *testing.T) {
	b := New(5)
	s := sessionstore.NewSession("sess-1", "banking")

	executed := 0
	suppressed := 0
	for i := 0; i < 6; i++ {
		turn := s.BeginTurn()
		// vary the arguments so dedup never triggers
		hash := HashArgs(map[string]interface{}{"count": i})
		switch b.ShouldAllow(s, "get_transactions", hash, turn) {
		case DecisionAllow:
			s.RecordAttempt("get_transactions", turn)
			executed++
		case DecisionSuppressCircuitBreak:
			suppressed++
		}
	}

	assert.Equal(t, 5, executed)
	assert.Equal(t, 1, suppressed)
}

func TestEndTurn_DropsReplayCache(t *testing.T) {
	b := New(5)
	s := sessionstore.NewSession("sess-1", "triage")
	turn := s.BeginTurn()
	hash := HashArgs(nil)

	b.StoreResult(s, "check_balance", hash, turn, "r1")
	b.EndTurn(s.ID, turn)

	_, ok := b.Replay(s, "check_balance", hash, turn)
	assert.False(t, ok)
}

func TestDropSession_IsolatesSessions(t *testing.T) {
	b := New(5)
	s1 := sessionstore.NewSession("sess-1", "triage")
	s2 := sessionstore.NewSession("sess-2", "triage")
	t1 := s1.BeginTurn()
	t2 := s2.BeginTurn()
	hash := HashArgs(nil)

	b.StoreResult(s1, "check_balance", hash, t1, "a")
	b.StoreResult(s2, "check_balance", hash, t2, "b")

	b.DropSession(s1.ID)

	_, ok := b.Replay(s1, "check_balance", hash, t1)
	assert.False(t, ok)
	replayed, ok := b.Replay(s2, "check_balance", hash, t2)
	require.True(t, ok)
	assert.Equal(t, "b", replayed)
}
