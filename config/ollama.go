package config

import (
	"os"
)

// LoadOllamaConfig loads Ollama configuration from server config.
// It returns the host and model to use for creating an Ollama analyzer.
func LoadOllamaConfig(cfg *ServerConfig) (host, model string) {
	if cfg == nil {
		host = getOllamaHostFromEnv()
		model = getOllamaModelFromEnv()
		return
	}

	host = cfg.Ollama.Host
	model = cfg.Ollama.Model

	// Apply environment variable overrides
	if envHost := getOllamaHostFromEnv(); envHost != "" {
		host = envHost
	}
	if envModel := getOllamaModelFromEnv(); envModel != "" {
		model = envModel
	}

	// Set defaults if still empty
	if host == "" {
		host = "http://localhost:11434"
	}

	return host, model
}

func getOllamaHostFromEnv() string {
	return os.Getenv("OLLAMA_HOST")
}

func getOllamaModelFromEnv() string {
	return os.Getenv("OLLAMA_MODEL")
}
