package roster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// rosterFile is the on-disk YAML shape
type rosterFile struct {
	IntakeAgent     string        `yaml:"intake_agent"`
	VerifierAgent   string        `yaml:"verifier_agent"`
	PostVerifyAgent string        `yaml:"post_verify_agent"`
	Agents          []*Definition `yaml:"agents"`
}

// Load reads and validates a roster from a YAML file
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}
	return Parse(data)
}

// Parse builds and validates a roster from YAML bytes
func Parse(data []byte) (*Roster, error) {
	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}

	defs := make(map[string]*Definition, len(file.Agents))
	for _, def := range file.Agents {
		if def.ID == "" {
			return nil, fmt.Errorf("agent with empty id")
		}
		if _, exists := defs[def.ID]; exists {
			return nil, fmt.Errorf("duplicate agent id: %s", def.ID)
		}
		defs[def.ID] = def
	}

	r := &Roster{
		IntakeAgentID:     file.IntakeAgent,
		VerifierAgentID:   file.VerifierAgent,
		PostVerifyAgentID: file.PostVerifyAgent,
		defs:              defs,
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	return r, nil
}
