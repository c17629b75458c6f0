package modelturn

import (
	"fmt"
	"time"
)

// FactoryConfig holds provider credentials and the shared call timeout
type FactoryConfig struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	Timeout         time.Duration
}

// Factory creates model clients per provider name
type Factory struct {
	cfg FactoryConfig
}

// NewFactory creates a provider factory
func NewFactory(cfg FactoryConfig) *Factory {
	return &Factory{cfg: cfg}
}

// Client returns a timeout-bounded client for the named provider
func (f *Factory) Client(provider string) (Client, error) {
	switch provider {
	case "openai":
		if f.cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai api key is not configured")
		}
		return WithTimeout(NewOpenAIClient(f.cfg.OpenAIAPIKey), f.cfg.Timeout), nil
	case "anthropic":
		if f.cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic api key is not configured")
		}
		return WithTimeout(NewAnthropicClient(f.cfg.AnthropicAPIKey), f.cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
