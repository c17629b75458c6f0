package roster

import (
	"fmt"
	"strings"
	"sync"
)

// HandoffToolPrefix is the naming convention for handoff-class tools.
// A tool named "transfer_to_banking" hands the conversation to the
// agent with ID "banking".
const HandoffToolPrefix = "transfer_to_"

// Definition describes one agent persona. Immutable after load and
// shared read-only across all sessions.
type Definition struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Provider       string   `yaml:"provider"` // "openai" or "anthropic"
	Model          string   `yaml:"model"`
	Prompt         string   `yaml:"prompt"`
	Greeting       string   `yaml:"greeting"`
	AllowedTools   []string `yaml:"tools"`
	HandoffTargets []string `yaml:"handoff_targets"`
}

// AllowsTool reports whether the agent may call the named tool
func (d *Definition) AllowsTool(name string) bool {
	for _, t := range d.AllowedTools {
		if t == name {
			return true
		}
	}
	return false
}

// CanHandOffTo reports whether the agent may hand off to the target agent
func (d *Definition) CanHandOffTo(agentID string) bool {
	for _, t := range d.HandoffTargets {
		if t == agentID {
			return true
		}
	}
	return false
}

// HandoffToolName returns the handoff tool name for a target agent
func HandoffToolName(targetAgentID string) string {
	return HandoffToolPrefix + targetAgentID
}

// ParseHandoffTool extracts the target agent from a handoff-class tool
// name. Returns false for tools that are not handoff-class.
func ParseHandoffTool(toolName string) (string, bool) {
	if !strings.HasPrefix(toolName, HandoffToolPrefix) {
		return "", false
	}
	target := strings.TrimPrefix(toolName, HandoffToolPrefix)
	if target == "" {
		return "", false
	}
	return target, true
}

// Roster is one loaded, validated agent set plus routing designations
type Roster struct {
	IntakeAgentID     string
	VerifierAgentID   string
	PostVerifyAgentID string

	defs map[string]*Definition
}

// Get returns the definition for an agent ID
func (r *Roster) Get(agentID string) (*Definition, error) {
	def, ok := r.defs[agentID]
	if !ok {
		return nil, fmt.Errorf("unknown agent: %s", agentID)
	}
	return def, nil
}

// Agents returns all agent IDs in the roster
func (r *Roster) Agents() []string {
	ids := make([]string, 0, len(r.defs))
	for id := range r.defs {
		ids = append(ids, id)
	}
	return ids
}

// Validate checks the roster for internal consistency at load time.
// An inconsistent roster is a startup error, not a runtime condition.
func (r *Roster) Validate() error {
	if len(r.defs) == 0 {
		return fmt.Errorf("roster has no agents")
	}

	for _, designated := range []struct {
		role string
		id   string
	}{
		{"intake_agent", r.IntakeAgentID},
		{"verifier_agent", r.VerifierAgentID},
		{"post_verify_agent", r.PostVerifyAgentID},
	} {
		if designated.id == "" {
			return fmt.Errorf("%s is required", designated.role)
		}
		if _, ok := r.defs[designated.id]; !ok {
			return fmt.Errorf("%s references unknown agent %q", designated.role, designated.id)
		}
	}

	for id, def := range r.defs {
		if def.Provider != "openai" && def.Provider != "anthropic" {
			return fmt.Errorf("agent %s: unsupported provider %q", id, def.Provider)
		}
		if def.Model == "" {
			return fmt.Errorf("agent %s: model is required", id)
		}

		for _, target := range def.HandoffTargets {
			if _, ok := r.defs[target]; !ok {
				return fmt.Errorf("agent %s: handoff target %q does not exist", id, target)
			}
		}

		// A handoff tool in the allowed set must match a declared target,
		// and every declared target must be reachable through a tool.
		for _, tool := range def.AllowedTools {
			if target, ok := ParseHandoffTool(tool); ok && !def.CanHandOffTo(target) {
				return fmt.Errorf("agent %s: holds handoff tool %q without declaring target %q", id, tool, target)
			}
		}
		for _, target := range def.HandoffTargets {
			if !def.AllowsTool(HandoffToolName(target)) {
				return fmt.Errorf("agent %s: declares target %q but lacks tool %q", id, target, HandoffToolName(target))
			}
		}
	}

	// Least privilege: the post-verification specialist never holds
	// handoff tools, so a verified session cannot be routed away by a
	// tool call regardless of model behavior.
	postVerify := r.defs[r.PostVerifyAgentID]
	for _, tool := range postVerify.AllowedTools {
		if _, ok := ParseHandoffTool(tool); ok {
			return fmt.Errorf("post-verification agent %s must not hold handoff tool %q", postVerify.ID, tool)
		}
	}

	return nil
}

// Registry holds the current roster and supports atomic swap on reload.
// Live sessions keep the pointer they resolved at creation; only new
// sessions observe a swapped roster.
type Registry struct {
	mu      sync.RWMutex
	current *Roster
}

// NewRegistry creates a registry with an initial roster
func NewRegistry(initial *Roster) *Registry {
	return &Registry{current: initial}
}

// Current returns the active roster
func (g *Registry) Current() *Roster {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current
}

// Swap replaces the active roster
func (g *Registry) Swap(next *Roster) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = next
}
