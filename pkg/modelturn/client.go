package modelturn

import (
	"context"
	"errors"
	"time"
)

// ErrModelUnavailable marks a failed or timed-out generation call. The
// conversation stays connected; the turn surfaces a transient error.
var ErrModelUnavailable = errors.New("model unavailable")

// Kind discriminates a model response
type Kind string

const (
	KindText        Kind = "text"
	KindToolRequest Kind = "toolRequest"
)

// ToolCall is a model-requested tool invocation
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Message is one entry of the transcript window sent to the model
type Message struct {
	Role       string     `json:"role"` // user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolSchema describes one tool offered to the model
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Request is one model turn: persona prompt, window, offered tools.
// ForceToolUse requires the model to answer with a tool call, used
// when a deterministic signal already says one is appropriate.
type Request struct {
	AgentID      string
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []ToolSchema
	ForceToolUse bool
	MaxTokens    int
	Temperature  float64
}

// Response is either a text fragment or a tool invocation request
type Response struct {
	Kind     Kind
	Text     string
	IsFinal  bool
	ToolCall *ToolCall
}

// Client produces one conversational turn from the generation engine
type Client interface {
	Turn(ctx context.Context, req Request) (Response, error)
}

// timeoutClient bounds every model call. A deadline overrun surfaces as
// ErrModelUnavailable, never a hang.
type timeoutClient struct {
	next    Client
	timeout time.Duration
}

// WithTimeout wraps a client with a per-call deadline
func WithTimeout(next Client, timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &timeoutClient{next: next, timeout: timeout}
}

func (c *timeoutClient) Turn(ctx context.Context, req Request) (Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.next.Turn(callCtx, req)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return Response{}, ErrModelUnavailable
		}
		return Response{}, err
	}
	return resp, nil
}
