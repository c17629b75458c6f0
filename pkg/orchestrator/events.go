package orchestrator

import "fmt"

// InboundKind enumerates the closed set of inbound event variants
type InboundKind string

const (
	InboundConnect     InboundKind = "connect"
	InboundUserMessage InboundKind = "userMessage"
	InboundDisconnect  InboundKind = "disconnect"
)

// InboundEvent is one event on a conversation's ingress stream
type InboundEvent struct {
	Kind      InboundKind            `json:"kind"`
	SessionID string                 `json:"session_id"`
	Text      string                 `json:"text,omitempty"`
	Seed      map[string]interface{} `json:"seed,omitempty"`
}

// Validate rejects events outside the closed variant set at the boundary
func (e InboundEvent) Validate() error {
	if e.SessionID == "" {
		return fmt.Errorf("inbound event has no session id")
	}
	switch e.Kind {
	case InboundConnect, InboundDisconnect:
		return nil
	case InboundUserMessage:
		if e.Text == "" {
			return fmt.Errorf("userMessage event has no text")
		}
		return nil
	default:
		return fmt.Errorf("unknown inbound event kind: %q", e.Kind)
	}
}

// OutboundKind enumerates the closed set of outbound event variants
type OutboundKind string

const (
	OutboundTranscript OutboundKind = "transcript"
	OutboundToolEvent  OutboundKind = "toolEvent"
	OutboundHandoff    OutboundKind = "handoff"
	OutboundError      OutboundKind = "error"
)

// Error kinds surfaced to clients
const (
	ErrKindBadRequest            = "BadRequest"
	ErrKindToolFailure           = "ToolFailure"
	ErrKindRoutingConflict       = "RoutingConflict"
	ErrKindVerificationExhausted = "VerificationExhausted"
	ErrKindModelUnavailable      = "ModelUnavailable"
)

// TranscriptEvent carries one transcript revision. Repeats of one
// TurnID are display updates, never new entries.
type TranscriptEvent struct {
	TurnID  string `json:"turn_id"`
	Role    string `json:"role"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// ToolEvent reports one tool invocation outcome
type ToolEvent struct {
	ToolName string `json:"tool_name"`
	Outcome  string `json:"outcome"`
}

// HandoffEvent reports a completed agent transfer
type HandoffEvent struct {
	FromAgentID string `json:"from_agent_id"`
	ToAgentID   string `json:"to_agent_id"`
	Reason      string `json:"reason"`
}

// ErrorEvent reports a user-visible failure
type ErrorEvent struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// OutboundEvent is one event on a conversation's egress stream
type OutboundEvent struct {
	Kind       OutboundKind     `json:"kind"`
	SessionID  string           `json:"session_id"`
	Transcript *TranscriptEvent `json:"transcript,omitempty"`
	Tool       *ToolEvent       `json:"tool,omitempty"`
	Handoff    *HandoffEvent    `json:"handoff,omitempty"`
	Error      *ErrorEvent      `json:"error,omitempty"`
}

// Emitter receives outbound events for delivery
type Emitter func(ev OutboundEvent)
