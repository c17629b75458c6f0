package handoff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calloway/switchboard/pkg/sessionstore"
	"github.com/calloway/switchboard/pkg/toolgw"
)

func verifiedResult(name string) toolgw.Result {
	return toolgw.Result{
		Status: "success",
		Payload: map[string]interface{}{
			"verification": map[string]interface{}{
				"status":       "verified",
				"customerName": name,
			},
		},
	}
}

func rejectedResult() toolgw.Result {
	return toolgw.Result{
		Status: "success",
		Payload: map[string]interface{}{
			"verification": map[string]interface{}{"status": "rejected"},
		},
	}
}

func TestGate_IgnoresOtherTools(t *testing.T) {
	g := NewGate(3)
	ros := loadTestRoster(t)
	s := sessionstore.NewSession("sess-1", "verification")

	out := g.Inspect(s, ros, "check_balance", verifiedResult("Jane"))
	assert.False(t, out.ScheduleVerified)
	assert.Nil(t, out.Exhausted)
	assert.False(t, s.Memory.GetBool(sessionstore.KeyVerified))
}

func TestGate_SuccessSetsFactsAndSchedulesOnce(t *testing.T) {
	g := NewGate(3)
	ros := loadTestRoster(t)
	s := sessionstore.NewSession("sess-1", "verification")
	s.State = sessionstore.StateVerifying

	out := g.Inspect(s, ros, toolgw.ToolVerifyIdentity, verifiedResult("Jane Doe"))
	assert.True(t, out.ScheduleVerified)
	assert.True(t, s.Memory.GetBool(sessionstore.KeyVerified))
	assert.Equal(t, "Jane Doe", s.Memory.GetString(sessionstore.KeyVerifiedUserName))

	// a spurious second success schedules nothing
	out = g.Inspect(s, ros, toolgw.ToolVerifyIdentity, verifiedResult("Jane Doe"))
	assert.False(t, out.ScheduleVerified)
	assert.Nil(t, out.Exhausted)
}

func TestGate_TransportFailureNotCounted(t *testing.T) {
	g := NewGate(3)
	ros := loadTestRoster(t)
	s := sessionstore.NewSession("sess-1", "verification")

	out := g.Inspect(s, ros, toolgw.ToolVerifyIdentity, toolgw.Result{Status: "failure", Error: "timed out"})
	assert.False(t, out.ScheduleVerified)
	assert.Nil(t, out.Exhausted)
	assert.Equal(t, 0, s.VerifyAttempts)
}

func TestGate_ExhaustedBudgetForcesIntake(t *testing.T) {
	g := NewGate(3)
	ros := loadTestRoster(t)
	s := sessionstore.NewSession("sess-1", "verification")
	s.State = sessionstore.StateVerifying

	for i := 0; i < 2; i++ {
		out := g.Inspect(s, ros, toolgw.ToolVerifyIdentity, rejectedResult())
		assert.Nil(t, out.Exhausted)
	}

	out := g.Inspect(s, ros, toolgw.ToolVerifyIdentity, rejectedResult())
	require.NotNil(t, out.Exhausted)
	assert.Equal(t, "verification", out.Exhausted.From)
	assert.Equal(t, "triage", out.Exhausted.To)
	assert.Equal(t, ReasonVerifiedStateGate, out.Exhausted.Reason)

	assert.Equal(t, "triage", s.ActiveAgentID)
	assert.Equal(t, sessionstore.StateRouting, s.State)
}

func TestParseVerification_FlatFormat(t *testing.T) {
	ok, name := parseVerification(map[string]interface{}{"verified": true, "customerName": "Ana"})
	assert.True(t, ok)
	assert.Equal(t, "Ana", name)

	ok, _ = parseVerification(map[string]interface{}{"verified": false})
	assert.False(t, ok)

	ok, _ = parseVerification(nil)
	assert.False(t, ok)
}
