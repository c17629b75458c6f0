package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/calloway/switchboard/internal/metrics"
	"github.com/calloway/switchboard/pkg/breaker"
	"github.com/calloway/switchboard/pkg/handoff"
	"github.com/calloway/switchboard/pkg/modelturn"
	"github.com/calloway/switchboard/pkg/roster"
	"github.com/calloway/switchboard/pkg/sessionstore"
	"github.com/calloway/switchboard/pkg/toolgw"
)

// maxToolCycles bounds the model/tool loop within one turn
const maxToolCycles = 8

// windowSize caps the transcript slice sent to the model
const windowSize = 40

// runTurn drives one conversational turn for the active agent: model
// call, tool loop, handoff interception, verification gate. Runs inside
// the session's lane.
func (o *Orchestrator) runTurn(s *sessionstore.Session, ros *roster.Roster, def *roster.Definition, turn int, forceToolUse bool) {
	start := time.Now()
	ctx := context.Background()
	status := "success"

	defer func() {
		o.brk.EndTurn(s.ID, turn)
		metrics.Get().ObserveTurn(def.ID, status, time.Since(start))
	}()

	client, err := o.models.Client(def.Provider)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Str("provider", def.Provider).Msg("No model client for agent")
		o.emitError(s.ID, ErrKindModelUnavailable, "the assistant is temporarily unavailable")
		status = "failure"
		return
	}

	messages := o.window(s)
	tools := toolSchemas(o.tools.Definitions(def.AllowedTools))

	var next *roster.Definition

	for cycle := 0; cycle < maxToolCycles; cycle++ {
		req := modelturn.Request{
			AgentID:      def.ID,
			Model:        def.Model,
			SystemPrompt: def.Prompt,
			Messages:     messages,
			Tools:        tools,
			ForceToolUse: forceToolUse && cycle == 0,
		}

		resp, err := client.Turn(ctx, req)
		if err != nil {
			if errors.Is(err, modelturn.ErrModelUnavailable) {
				o.emitError(s.ID, ErrKindModelUnavailable, "the assistant is temporarily unavailable")
			} else {
				log.Error().Err(err).Str("session_id", s.ID).Msg("Model turn failed")
				o.emitError(s.ID, ErrKindModelUnavailable, "the assistant could not respond")
			}
			status = "failure"
			return
		}

		if resp.Kind == modelturn.KindText {
			rec := sessionstore.TurnRecord{
				TurnID: s.TurnID("assistant"),
				Role:   "assistant",
				Text:   resp.Text,
				Final:  resp.IsFinal,
			}
			s.Transcript.Upsert(rec)
			o.emitTranscript(s.ID, rec)
			break
		}

		tc := resp.ToolCall
		if tc == nil {
			log.Warn().Str("session_id", s.ID).Msg("Tool request response without a tool call")
			break
		}

		result, nextDef := o.handleToolCall(ctx, s, ros, def, tc, turn)

		messages = append(messages,
			modelturn.Message{
				Role:      "assistant",
				ToolCalls: []modelturn.ToolCall{*tc},
			},
			modelturn.Message{
				Role:       "tool",
				ToolCallID: tc.ID,
				Content:    encodeResult(result),
			},
		)

		if nextDef != nil {
			// A handoff ends the acting agent's turn; the target takes
			// over after the loop unwinds.
			next = nextDef
			break
		}
	}

	if next != nil {
		o.activateAgent(s, ros, next)
	}
}

// handleToolCall runs one requested tool call through the breaker, the
// executor, the handoff interceptor and the verification gate. The
// returned definition is non-nil when a handoff took effect and names
// the agent now in control.
func (o *Orchestrator) handleToolCall(ctx context.Context, s *sessionstore.Session, ros *roster.Roster, def *roster.Definition, tc *modelturn.ToolCall, turn int) (toolgw.Result, *roster.Definition) {
	if !def.AllowsTool(tc.Name) {
		log.Warn().
			Str("session_id", s.ID).
			Str("agent_id", def.ID).
			Str("tool", tc.Name).
			Msg("Tool outside agent's allowed set")
		result := toolgw.Result{Status: "failure", Error: "tool is not available to this agent"}
		o.recordInvocation(s, tc.Name, "", turn, sessionstore.OutcomeFailure, 0)
		return result, nil
	}

	argsHash := breaker.HashArgs(tc.Arguments)

	switch o.brk.ShouldAllow(s, tc.Name, argsHash, turn) {
	case breaker.DecisionSuppressDuplicate:
		// Replay the first execution's result; the model cannot tell the
		// call was suppressed, and no side effect ran twice.
		cached, ok := o.brk.Replay(s, tc.Name, argsHash, turn)
		result, _ := cached.(toolgw.Result)
		if !ok {
			result = toolgw.Result{Status: "failure", Error: "duplicate call had no cached result"}
		}
		o.recordInvocation(s, tc.Name, argsHash, turn, sessionstore.OutcomeSuppressedDuplicate, 0)
		metrics.Get().SuppressedCallsTotal.WithLabelValues(tc.Name, "duplicate").Inc()
		return result, nil

	case breaker.DecisionSuppressCircuitBreak:
		result := toolgw.Result{Status: "failure", Error: "tool call limit reached for this conversation"}
		o.recordInvocation(s, tc.Name, argsHash, turn, sessionstore.OutcomeSuppressedCircuitBreak, 0)
		metrics.Get().SuppressedCallsTotal.WithLabelValues(tc.Name, "circuit-break").Inc()
		o.emitError(s.ID, ErrKindToolFailure, "the requested action was attempted too many times")
		return result, nil
	}

	s.RecordAttempt(tc.Name, turn)

	toolStart := time.Now()
	result := o.tools.Invoke(ctx, tc.Name, tc.Arguments)
	elapsed := time.Since(toolStart)

	o.brk.StoreResult(s, tc.Name, argsHash, turn, result)

	outcome := sessionstore.OutcomeSuccess
	if !result.Success() {
		outcome = sessionstore.OutcomeFailure
	}
	o.recordInvocation(s, tc.Name, argsHash, turn, outcome, elapsed)

	if !result.Success() {
		o.emitError(s.ID, ErrKindToolFailure, result.Error)
		return result, nil
	}

	// Handoff interception acts on successful results only
	ev, err := handoff.Intercept(s, def, ros, tc.Name, result, turn)
	switch {
	case errors.Is(err, handoff.ErrHandoffConflict):
		// First handoff of the turn stands; this one is reported back as
		// a failure so the model sees it had no effect.
		return toolgw.Result{Status: "failure", Error: "a transfer already happened this turn"}, nil
	case errors.Is(err, handoff.ErrRoutingConflict):
		o.emitError(s.ID, ErrKindRoutingConflict, err.Error())
		return toolgw.Result{Status: "failure", Error: err.Error()}, nil
	case err != nil:
		log.Error().Err(err).Str("session_id", s.ID).Msg("Handoff interception failed")
		return toolgw.Result{Status: "failure", Error: err.Error()}, nil
	case ev != nil:
		metrics.Get().HandoffsTotal.WithLabelValues(ev.From, ev.To, string(ev.Reason)).Inc()
		o.emit(OutboundEvent{
			Kind:      OutboundHandoff,
			SessionID: s.ID,
			Handoff: &HandoffEvent{
				FromAgentID: ev.From,
				ToAgentID:   ev.To,
				Reason:      string(ev.Reason),
			},
		})
		target, terr := ros.Get(ev.To)
		if terr != nil {
			log.Error().Err(terr).Str("session_id", s.ID).Msg("Handoff target missing from pinned roster")
			return result, nil
		}
		return result, target
	}

	// Verified-State Gate inspects verification results
	out := o.gate.Inspect(s, ros, tc.Name, result)
	if tc.Name == toolgw.ToolVerifyIdentity {
		switch {
		case out.ScheduleVerified:
			metrics.Get().VerificationsTotal.WithLabelValues("verified").Inc()
		case out.Exhausted != nil:
			metrics.Get().VerificationsTotal.WithLabelValues("exhausted").Inc()
		case !s.Memory.GetBool(sessionstore.KeyVerified):
			metrics.Get().VerificationsTotal.WithLabelValues("rejected").Inc()
		}
	}

	if out.ScheduleVerified {
		o.scheduleVerifiedTransition(s.ID, s.Generation)
	}

	if out.Exhausted != nil {
		o.emitError(s.ID, ErrKindVerificationExhausted, "identity could not be verified")
		metrics.Get().HandoffsTotal.WithLabelValues(out.Exhausted.From, out.Exhausted.To, string(out.Exhausted.Reason)).Inc()
		o.emit(OutboundEvent{
			Kind:      OutboundHandoff,
			SessionID: s.ID,
			Handoff: &HandoffEvent{
				FromAgentID: out.Exhausted.From,
				ToAgentID:   out.Exhausted.To,
				Reason:      string(out.Exhausted.Reason),
			},
		})
		target, terr := ros.Get(out.Exhausted.To)
		if terr != nil {
			log.Error().Err(terr).Str("session_id", s.ID).Msg("Intake agent missing from pinned roster")
			return result, nil
		}
		return result, target
	}

	return result, nil
}

// recordInvocation logs the attempt and observes the tool metrics
func (o *Orchestrator) recordInvocation(s *sessionstore.Session, tool, argsHash string, turn int, outcome sessionstore.Outcome, d time.Duration) {
	s.LogInvocation(sessionstore.InvocationRecord{
		Tool:     tool,
		ArgsHash: argsHash,
		Turn:     turn,
		Outcome:  outcome,
	})
	metrics.Get().ObserveTool(tool, string(outcome), d)
	o.emit(OutboundEvent{
		Kind:      OutboundToolEvent,
		SessionID: s.ID,
		Tool:      &ToolEvent{ToolName: tool, Outcome: string(outcome)},
	})
}

// window builds the transcript slice offered to the model
func (o *Orchestrator) window(s *sessionstore.Session) []modelturn.Message {
	records := s.Transcript.Records()
	if len(records) > windowSize {
		records = records[len(records)-windowSize:]
	}

	messages := make([]modelturn.Message, 0, len(records))
	for _, rec := range records {
		if rec.Role != "user" && rec.Role != "assistant" {
			continue
		}
		messages = append(messages, modelturn.Message{Role: rec.Role, Content: rec.Text})
	}
	return messages
}

// toolSchemas converts executor definitions to the model-facing shape
func toolSchemas(defs []toolgw.Definition) []modelturn.ToolSchema {
	out := make([]modelturn.ToolSchema, 0, len(defs))
	for _, def := range defs {
		out = append(out, modelturn.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Schema,
		})
	}
	return out
}

// encodeResult renders a tool result for the model's tool message
func encodeResult(result toolgw.Result) string {
	data, err := json.Marshal(result)
	if err != nil {
		return `{"status":"failure","error":"unencodable result"}`
	}
	return string(data)
}
