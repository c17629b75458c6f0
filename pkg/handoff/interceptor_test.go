package handoff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calloway/switchboard/pkg/roster"
	"github.com/calloway/switchboard/pkg/sessionstore"
	"github.com/calloway/switchboard/pkg/toolgw"
)

const testRoster = `
intake_agent: triage
verifier_agent: verification
post_verify_agent: banking
agents:
  - id: triage
    provider: openai
    model: gpt-4o-mini
    tools: [transfer_to_verification]
    handoff_targets: [verification]
  - id: verification
    provider: openai
    model: gpt-4o-mini
    tools: [verify_identity, transfer_to_triage]
    handoff_targets: [triage]
  - id: banking
    provider: openai
    model: gpt-4o-mini
    tools: [check_balance, get_transactions]
`

func loadTestRoster(t *testing.T) *roster.Roster {
	t.Helper()
	r, err := roster.Parse([]byte(testRoster))
	require.NoError(t, err)
	return r
}

func success() toolgw.Result {
	return toolgw.Result{Status: "success", Payload: map[string]interface{}{}}
}

func TestIntercept_IgnoresNonHandoffTools(t *testing.T) {
	ros := loadTestRoster(t)
	s := sessionstore.NewSession("sess-1", "triage")
	def, _ := ros.Get("triage")

	ev, err := Intercept(s, def, ros, "check_balance", success(), s.BeginTurn())
	assert.NoError(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, "triage", s.ActiveAgentID)
}

func TestIntercept_FailedResultNeverTransitions(t *testing.T) {
	ros := loadTestRoster(t)
	s := sessionstore.NewSession("sess-1", "triage")
	def, _ := ros.Get("triage")

	ev, err := Intercept(s, def, ros, "transfer_to_verification", toolgw.Result{Status: "failure"}, s.BeginTurn())
	assert.NoError(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, "triage", s.ActiveAgentID)
	assert.Equal(t, sessionstore.StateRouting, s.State)
}

func TestIntercept_HandoffMovesSession(t *testing.T) {
	ros := loadTestRoster(t)
	s := sessionstore.NewSession("sess-1", "triage")
	s.Memory.Set(sessionstore.KeyAccountNumber, "12345678")
	def, _ := ros.Get("triage")
	turn := s.BeginTurn()

	ev, err := Intercept(s, def, ros, "transfer_to_verification", success(), turn)
	require.NoError(t, err)
	require.NotNil(t, ev)

	assert.Equal(t, "triage", ev.From)
	assert.Equal(t, "verification", ev.To)
	assert.Equal(t, ReasonExplicitToolCall, ev.Reason)
	assert.Equal(t, "12345678", ev.CarriedMemory[sessionstore.KeyAccountNumber])

	assert.Equal(t, "verification", s.ActiveAgentID)
	assert.Equal(t, sessionstore.StateVerifying, s.State)
}

func TestIntercept_DisallowedTargetIsRoutingConflict(t *testing.T) {
	ros := loadTestRoster(t)
	s := sessionstore.NewSession("sess-1", "verification")
	s.State = sessionstore.StateVerifying
	def, _ := ros.Get("verification")

	// verification may hand off to triage only
	ev, err := Intercept(s, def, ros, "transfer_to_banking", success(), s.BeginTurn())
	assert.Nil(t, ev)
	assert.ErrorIs(t, err, ErrRoutingConflict)
	assert.Equal(t, "verification", s.ActiveAgentID)
	assert.Equal(t, sessionstore.StateVerifying, s.State)
}

func TestIntercept_SecondHandoffInTurnDiscarded(t *testing.T) {
	ros := loadTestRoster(t)
	s := sessionstore.NewSession("sess-1", "triage")
	def, _ := ros.Get("triage")
	turn := s.BeginTurn()

	_, err := Intercept(s, def, ros, "transfer_to_verification", success(), turn)
	require.NoError(t, err)

	// the verification agent now owns the session, but the same turn
	// cannot host a second handoff
	vdef, _ := ros.Get("verification")
	ev, err := Intercept(s, vdef, ros, "transfer_to_triage", success(), turn)
	assert.Nil(t, ev)
	assert.ErrorIs(t, err, ErrHandoffConflict)
	assert.Equal(t, "verification", s.ActiveAgentID)
}

func TestApplyTransition_VerifiedSpecialist(t *testing.T) {
	ros := loadTestRoster(t)
	s := sessionstore.NewSession("sess-1", "verification")
	s.State = sessionstore.StateVerifying
	s.Memory.Set(sessionstore.KeyVerified, true)

	ApplyTransition(s, ros, "banking", s.BeginTurn())
	assert.Equal(t, sessionstore.StateVerified, s.State)
	assert.Equal(t, "banking", s.ActiveAgentID)
}
