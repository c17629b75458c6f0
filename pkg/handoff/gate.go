package handoff

import (
	"github.com/rs/zerolog/log"

	"github.com/calloway/switchboard/pkg/roster"
	"github.com/calloway/switchboard/pkg/sessionstore"
	"github.com/calloway/switchboard/pkg/toolgw"
)

// DefaultMaxAttempts is the failed-verification budget per session
const DefaultMaxAttempts = 3

// GateOutcome is the Verified-State Gate's ruling on a verification
// tool result
type GateOutcome struct {
	// ScheduleVerified asks the orchestrator to schedule the
	// post-verification transition after the settling delay. Set at
	// most once per session: repeat verification successes are no-ops.
	ScheduleVerified bool

	// Exhausted carries the forced return to intake after the attempt
	// budget is spent. Applied immediately, not scheduled.
	Exhausted *Event
}

// Gate auto-routes the session once identity verification objectively
// succeeds, independent of whether the verifying agent requested a
// handoff.
type Gate struct {
	maxAttempts int
}

// NewGate creates a gate. maxAttempts <= 0 selects the default budget.
func NewGate(maxAttempts int) *Gate {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Gate{maxAttempts: maxAttempts}
}

// Inspect evaluates a verification-class tool result. Non-verification
// tools and transport failures yield a zero outcome.
func (g *Gate) Inspect(s *sessionstore.Session, ros *roster.Roster, toolName string, result toolgw.Result) GateOutcome {
	if toolName != toolgw.ToolVerifyIdentity {
		return GateOutcome{}
	}
	if !result.Success() {
		// Executor-level failure (timeout, backend down): reported as a
		// tool failure elsewhere, not counted as a rejected credential.
		return GateOutcome{}
	}

	verified, userName := parseVerification(result.Payload)
	if !verified {
		s.VerifyAttempts++
		log.Info().
			Str("session_id", s.ID).
			Int("attempts", s.VerifyAttempts).
			Int("budget", g.maxAttempts).
			Msg("Verification attempt failed")

		if s.VerifyAttempts >= g.maxAttempts {
			from := s.ActiveAgentID
			ev := &Event{
				From:          from,
				To:            ros.IntakeAgentID,
				CarriedMemory: s.Memory.Snapshot(),
				Reason:        ReasonVerifiedStateGate,
			}
			ApplyTransition(s, ros, ros.IntakeAgentID, s.TurnIndex)
			log.Warn().
				Str("session_id", s.ID).
				Msg("Verification budget exhausted, returning to intake")
			return GateOutcome{Exhausted: ev}
		}
		return GateOutcome{}
	}

	// Write-once: the first successful check sets the fact and wins the
	// scheduled transition; later successes change nothing.
	wroteVerified := s.Memory.Set(sessionstore.KeyVerified, true)
	if userName != "" {
		s.Memory.Set(sessionstore.KeyVerifiedUserName, userName)
	}

	if !wroteVerified {
		log.Debug().Str("session_id", s.ID).Msg("Repeat verification success ignored")
		return GateOutcome{}
	}

	log.Info().
		Str("session_id", s.ID).
		Str("user", userName).
		Msg("Identity verified, scheduling post-verification transition")

	return GateOutcome{ScheduleVerified: true}
}

// parseVerification digs the verification outcome out of the nested
// tool payload. Backends report either a nested verification object or
// a flat verified flag.
func parseVerification(payload map[string]interface{}) (bool, string) {
	if payload == nil {
		return false, ""
	}

	if nested, ok := payload["verification"].(map[string]interface{}); ok {
		status, _ := nested["status"].(string)
		name, _ := nested["customerName"].(string)
		return status == "verified", name
	}

	if flag, ok := payload["verified"].(bool); ok {
		name, _ := payload["customerName"].(string)
		return flag, name
	}

	return false, ""
}
