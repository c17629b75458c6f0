package toolgw

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Result is the outcome of one tool invocation. Payload is
// tool-specific and opaque to callers beyond the handoff and
// verification parsing done by the routing layer.
type Result struct {
	Status  string                 `json:"status"` // "success" or "failure"
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Success reports whether the tool succeeded
func (r Result) Success() bool {
	return r.Status == "success"
}

// Handler executes one tool call
type Handler func(ctx context.Context, args map[string]interface{}) (Result, error)

// Definition describes a tool: its argument schema and handler
type Definition struct {
	Name        string
	Description string
	Schema      map[string]interface{} // JSON schema for arguments
	Handler     Handler
}

// Executor validates arguments and dispatches tool calls. Safe for
// concurrent use across sessions.
type Executor struct {
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
	timeout time.Duration
	mu      sync.RWMutex
}

// NewExecutor creates an empty executor with a per-call timeout
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Executor{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
		timeout: timeout,
	}
}

// Register adds a tool definition, compiling its argument schema
func (e *Executor) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", def.Name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}

	if def.Schema != nil {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.Schema))
		if err != nil {
			return fmt.Errorf("tool %s: invalid schema: %w", def.Name, err)
		}
		e.schemas[def.Name] = schema
	}

	e.tools[def.Name] = &def
	return nil
}

// Has reports whether a tool is registered
func (e *Executor) Has(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.tools[name]
	return ok
}

// Definitions returns the definitions for the named tools, skipping
// unknown names
func (e *Executor) Definitions(names []string) []Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Definition, 0, len(names))
	for _, name := range names {
		if def, ok := e.tools[name]; ok {
			out = append(out, *def)
		}
	}
	return out
}

// Invoke validates arguments and executes the named tool under the
// executor's timeout. A timeout or handler error comes back as a
// failure Result, never a hang.
func (e *Executor) Invoke(ctx context.Context, name string, args map[string]interface{}) Result {
	e.mu.RLock()
	def, ok := e.tools[name]
	schema := e.schemas[name]
	e.mu.RUnlock()

	if !ok {
		return Result{Status: "failure", Error: fmt.Sprintf("unknown tool: %s", name)}
	}

	if args == nil {
		args = map[string]interface{}{}
	}

	if schema != nil {
		validation, err := schema.Validate(gojsonschema.NewGoLoader(args))
		if err != nil {
			return Result{Status: "failure", Error: fmt.Sprintf("argument validation error: %v", err)}
		}
		if !validation.Valid() {
			return Result{Status: "failure", Error: fmt.Sprintf("invalid arguments: %v", validation.Errors())}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	result, err := def.Handler(callCtx, args)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			log.Warn().Str("tool", name).Dur("timeout", e.timeout).Msg("Tool call timed out")
			return Result{Status: "failure", Error: "tool call timed out"}
		}
		return Result{Status: "failure", Error: err.Error()}
	}

	log.Debug().
		Str("tool", name).
		Str("status", result.Status).
		Dur("duration", time.Since(start)).
		Msg("Tool invoked")

	return result
}
