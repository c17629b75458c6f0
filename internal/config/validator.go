package config

import (
	"fmt"
	"strings"
)

// ValidationError aggregates all configuration problems found in one pass
type ValidationError struct {
	Problems []string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%d problem(s): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Validate checks the configuration for internal consistency
func Validate(cfg *Config) error {
	var problems []string

	if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
		problems = append(problems, fmt.Sprintf("gateway.port out of range: %d", cfg.Gateway.Port))
	}
	if cfg.Models.Timeout <= 0 {
		problems = append(problems, "models.timeout must be positive")
	}
	if cfg.Tools.Timeout <= 0 {
		problems = append(problems, "tools.timeout must be positive")
	}
	if cfg.Session.MaxVerifyAttempts <= 0 {
		problems = append(problems, "session.max_verify_attempts must be positive")
	}
	if cfg.Session.ToolCallCeiling <= 0 {
		problems = append(problems, "session.tool_call_ceiling must be positive")
	}
	if cfg.Session.SettleDelay < 0 {
		problems = append(problems, "session.settle_delay cannot be negative")
	}
	if cfg.Session.IdleTimeout <= 0 {
		problems = append(problems, "session.idle_timeout must be positive")
	}
	if cfg.Session.MaxConcurrentWorkers <= 0 {
		problems = append(problems, "session.max_concurrent_workers must be positive")
	}
	if cfg.RosterPath == "" {
		problems = append(problems, "roster_path is required")
	}
	if cfg.Archive.Enabled && cfg.Archive.Path == "" {
		problems = append(problems, "archive.path is required when archive is enabled")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
