package config

import (
	"os"
)

// LoadAnthropicConfig loads Anthropic configuration from server config.
// It returns the API key and model to use for creating an Anthropic analyzer
// or the summary narrative generator.
func LoadAnthropicConfig(cfg *ServerConfig) (apiKey, model string) {
	if cfg == nil {
		return os.Getenv("ANTHROPIC_API_KEY"), ""
	}

	apiKey = cfg.Anthropic.APIKey
	model = cfg.Anthropic.Model

	if envAPIKey := os.Getenv("ANTHROPIC_API_KEY"); envAPIKey != "" {
		apiKey = envAPIKey
	}

	return apiKey, model
}
