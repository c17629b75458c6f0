package config

import (
	"time"
)

// Config represents the main switchboard configuration
type Config struct {
	// Gateway server
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Model providers
	Models ModelsConfig `json:"models" mapstructure:"models"`

	// Tool backends
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Session orchestration budgets
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Agent roster file
	RosterPath string `json:"roster_path" mapstructure:"roster_path"`

	// Transcript archive
	Archive ArchiveConfig `json:"archive" mapstructure:"archive"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// GatewayConfig holds websocket gateway configuration
type GatewayConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// ModelsConfig holds model provider configuration
type ModelsConfig struct {
	OpenAIAPIKey    string        `json:"openai_api_key" mapstructure:"openai_api_key"`
	AnthropicAPIKey string        `json:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
}

// ToolsConfig holds tool executor configuration
type ToolsConfig struct {
	BaseURL string        `json:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// SessionConfig holds per-session orchestration budgets
type SessionConfig struct {
	IdleTimeout          time.Duration `json:"idle_timeout" mapstructure:"idle_timeout"`
	SettleDelay          time.Duration `json:"settle_delay" mapstructure:"settle_delay"`
	MaxVerifyAttempts    int           `json:"max_verify_attempts" mapstructure:"max_verify_attempts"`
	ToolCallCeiling      int           `json:"tool_call_ceiling" mapstructure:"tool_call_ceiling"`
	MaxConcurrentWorkers int           `json:"max_concurrent_workers" mapstructure:"max_concurrent_workers"`
}

// ArchiveConfig holds transcript archive configuration
type ArchiveConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 8484,
		},
		Models: ModelsConfig{
			Timeout: 30 * time.Second,
		},
		Tools: ToolsConfig{
			Timeout: 15 * time.Second,
		},
		Session: SessionConfig{
			IdleTimeout:          30 * time.Minute,
			SettleDelay:          1500 * time.Millisecond,
			MaxVerifyAttempts:    3,
			ToolCallCeiling:      5,
			MaxConcurrentWorkers: 64,
		},
		RosterPath: "agents.yaml",
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    "switchboard.db",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Redaction: true,
		},
	}
}
