package handoff

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/calloway/switchboard/pkg/roster"
	"github.com/calloway/switchboard/pkg/sessionstore"
	"github.com/calloway/switchboard/pkg/toolgw"
)

// Reason says why control moved between agents
type Reason string

const (
	ReasonExplicitToolCall  Reason = "explicit-tool-call"
	ReasonVerifiedStateGate Reason = "verified-state-gate"
)

// Event describes one handoff that took effect
type Event struct {
	From          string
	To            string
	CarriedMemory map[string]interface{}
	Reason        Reason
}

// ErrRoutingConflict marks a handoff to a target outside the acting
// agent's allowed set
var ErrRoutingConflict = errors.New("routing conflict")

// ErrHandoffConflict marks a second handoff-class result in one turn;
// the first one stands
var ErrHandoffConflict = errors.New("handoff already taken this turn")

// Intercept inspects a completed tool result for a handoff. It acts on
// results only: a rejected or failed handoff call never moves the
// session. Returns nil, nil for non-handoff tools.
func Intercept(s *sessionstore.Session, def *roster.Definition, ros *roster.Roster, toolName string, result toolgw.Result, turn int) (*Event, error) {
	target, ok := roster.ParseHandoffTool(toolName)
	if !ok {
		return nil, nil
	}

	if !result.Success() {
		log.Debug().
			Str("session_id", s.ID).
			Str("tool", toolName).
			Msg("Failed handoff tool result, no transition")
		return nil, nil
	}

	if s.HandoffDoneThisTurn(turn) {
		log.Warn().
			Str("session_id", s.ID).
			Str("tool", toolName).
			Int("turn", turn).
			Msg("Second handoff in one turn discarded")
		return nil, ErrHandoffConflict
	}

	if !def.CanHandOffTo(target) {
		return nil, fmt.Errorf("%w: agent %s may not hand off to %s", ErrRoutingConflict, def.ID, target)
	}
	if _, err := ros.Get(target); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoutingConflict, err)
	}

	from := s.ActiveAgentID
	ev := &Event{
		From:          from,
		To:            target,
		CarriedMemory: s.Memory.Snapshot(),
		Reason:        ReasonExplicitToolCall,
	}

	ApplyTransition(s, ros, target, turn)

	log.Info().
		Str("session_id", s.ID).
		Str("from", from).
		Str("to", target).
		Str("state", string(s.State)).
		Msg("Handoff intercepted")

	return ev, nil
}

// ApplyTransition moves the session onto the target agent and advances
// the state machine.
func ApplyTransition(s *sessionstore.Session, ros *roster.Roster, target string, turn int) {
	s.ActiveAgentID = target

	switch {
	case target == ros.VerifierAgentID:
		s.State = sessionstore.StateVerifying
	case target == ros.IntakeAgentID:
		s.State = sessionstore.StateRouting
	case s.Memory.GetBool(sessionstore.KeyVerified):
		s.State = sessionstore.StateVerified
	default:
		s.State = sessionstore.StateHandedOff
	}

	s.MarkHandoff(turn)
}
