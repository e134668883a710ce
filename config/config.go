package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// AnthropicConfig represents configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key,omitempty"` // Anthropic API key
	Model  string `yaml:"model,omitempty"`   // Default model name
}

// OllamaConfig represents configuration for the Ollama provider.
type OllamaConfig struct {
	Host    string `yaml:"host,omitempty"`    // Ollama host (default: "http://localhost:11434")
	Model   string `yaml:"model,omitempty"`   // Default model name
	Timeout int    `yaml:"timeout,omitempty"` // Request timeout in seconds
}

// OpenAIConfig represents configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`      // OpenAI API key
	BaseURL      string `yaml:"base_url,omitempty"`     // Custom base URL (default: official API)
	Model        string `yaml:"model,omitempty"`        // Default model name
	Organization string `yaml:"organization,omitempty"` // Organization ID
}

// TopicConfig describes a single discussion topic within a topic set.
type TopicConfig struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Keywords    []string `yaml:"keywords,omitempty" json:"keywords,omitempty"` // hints passed to the analyzer
	SortOrder   int      `yaml:"sort_order,omitempty" json:"sort_order,omitempty"`
	Disabled    bool     `yaml:"disabled,omitempty" json:"disabled,omitempty"` // default: false (topic is active by default)
}

// TopicSetConfig describes the full collection of topics a conversation is
// expected to cover.
type TopicSetConfig struct {
	ID          string         `yaml:"id" json:"id"`
	Title       string         `yaml:"title" json:"title"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Topics      []*TopicConfig `yaml:"topics" json:"topics"`
}

// ActiveTopics returns the enabled topics of the set in sort order.
func (ts *TopicSetConfig) ActiveTopics() []*TopicConfig {
	var active []*TopicConfig
	for _, t := range ts.Topics {
		if !t.Disabled {
			active = append(active, t)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].SortOrder < active[j].SortOrder })
	return active
}

// DefaultHighConfidenceSkipThreshold is used when the configured threshold
// is unset or invalid.
const DefaultHighConfidenceSkipThreshold = 0.8

// ExtractionConfig controls the memory extraction engine.
type ExtractionConfig struct {
	// HighConfidenceSkipThreshold: topics already addressed at or above this
	// confidence are not re-analyzed (default 0.8).
	HighConfidenceSkipThreshold float64 `yaml:"high_confidence_skip_threshold,omitempty"`
	MessageWindow               int     `yaml:"message_window,omitempty"` // messages fed to each extraction batch (default 50)
}

// ClientConfig holds the status client tunables. All durations are
// milliseconds to match the wire-facing option names.
type ClientConfig struct {
	MaxReconnectAttempts     int `yaml:"max_reconnect_attempts,omitempty"`
	ReconnectBaseDelayMs     int `yaml:"reconnect_base_delay_ms,omitempty"`
	PingIntervalMs           int `yaml:"ping_interval_ms,omitempty"`
	ThinkingStaleTimeoutMs   int `yaml:"thinking_stale_timeout_ms,omitempty"`
	ExtractionStaleTimeoutMs int `yaml:"extraction_stale_timeout_ms,omitempty"`
}

// ReconnectBaseDelay returns the base reconnect delay as a duration.
func (c ClientConfig) ReconnectBaseDelay() time.Duration {
	return time.Duration(c.ReconnectBaseDelayMs) * time.Millisecond
}

// PingInterval returns the keepalive interval as a duration.
func (c ClientConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalMs) * time.Millisecond
}

// ThinkingStaleTimeout returns the thinking stale timeout as a duration.
func (c ClientConfig) ThinkingStaleTimeout() time.Duration {
	return time.Duration(c.ThinkingStaleTimeoutMs) * time.Millisecond
}

// ExtractionStaleTimeout returns the extraction stale timeout as a duration.
func (c ClientConfig) ExtractionStaleTimeout() time.Duration {
	return time.Duration(c.ExtractionStaleTimeoutMs) * time.Millisecond
}

// RetentionConfig controls the cron-driven conversation retention job.
type RetentionConfig struct {
	Disabled bool   `yaml:"disabled,omitempty"` // retention runs by default
	Schedule string `yaml:"schedule,omitempty"` // cron spec (default: daily at 03:00)
	MaxAge   string `yaml:"max_age,omitempty"`  // e.g. "720h"; turns older than this are pruned
}

// ServerConfig represents server-side configuration for the topicd daemon.
type ServerConfig struct {
	// Server settings
	Server struct {
		Addr string `yaml:"addr,omitempty"` // HTTP listen address (default: localhost:8099)
	} `yaml:"server,omitempty"`

	// Provider configurations for the analysis and summary collaborators
	Providers []string        `yaml:"providers,omitempty"` // preference order: "openai", "anthropic", "ollama"
	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	Ollama    OllamaConfig    `yaml:"ollama,omitempty"`
	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`

	// Topic set fixtures
	TopicSets map[string]*TopicSetConfig `yaml:"topic_sets,omitempty"`

	// Pipeline tunables
	Extraction ExtractionConfig `yaml:"extraction,omitempty"`
	Client     ClientConfig     `yaml:"client,omitempty"`
	Retention  RetentionConfig  `yaml:"retention,omitempty"`
}

// GetServerConfigPath returns the default server config file path.
// Can be overridden via TOPICD_CONFIG_PATH environment variable.
func GetServerConfigPath() string {
	if envPath := os.Getenv("TOPICD_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.topicd/config.yaml"
	}
	return filepath.Join(homeDir, ".topicd", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Defaults returns the built-in server configuration.
func Defaults() ServerConfig {
	defaults := ServerConfig{
		Providers: []string{"openai"},
		Anthropic: AnthropicConfig{
			Model: "claude-3-5-haiku-latest",
		},
		Ollama: OllamaConfig{
			Host:    "http://localhost:11434",
			Model:   "llama3.2:3b",
			Timeout: 60,
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4.1",
		},
		TopicSets: make(map[string]*TopicSetConfig),
		Extraction: ExtractionConfig{
			HighConfidenceSkipThreshold: 0.8,
			MessageWindow:               50,
		},
		Client: ClientConfig{
			MaxReconnectAttempts:     5,
			ReconnectBaseDelayMs:     1000,
			PingIntervalMs:           30000,
			ThinkingStaleTimeoutMs:   30000,
			ExtractionStaleTimeoutMs: 60000,
		},
		Retention: RetentionConfig{
			Schedule: "0 3 * * *",
			MaxAge:   "720h",
		},
	}
	defaults.Server.Addr = "localhost:8099"
	return defaults
}

// LoadServerConfig loads server-side configuration.
// Loads from topicsets.yaml and the user config file, merging them together.
func LoadServerConfig(path string) (*ServerConfig, error) {
	// Step 1: Set defaults
	defaults := Defaults()

	// Step 2: Load and merge topicsets.yaml config
	topicSetsPath := "topicsets.yaml"
	if envPath := os.Getenv("TOPICSETS_CONFIG"); envPath != "" {
		topicSetsPath = envPath
	}

	if _, err := os.Stat(topicSetsPath); err == nil {
		topicSetsYAML, err := os.ReadFile(topicSetsPath) //#nosec 304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read topic sets config from %q: %w", topicSetsPath, err)
		}

		var topicSetsConfig ServerConfig
		if err := yaml.Unmarshal(topicSetsYAML, &topicSetsConfig); err != nil {
			return nil, fmt.Errorf("failed to parse topic sets config: %w", err)
		}

		// Merge topic sets config onto defaults
		if err := mergo.Merge(&defaults, topicSetsConfig, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge topic sets config: %w", err)
		}
	}

	// Step 3: Merge user config file onto the result (if it exists)
	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		userConfigYAML, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read user config file %q: %w", expandedPath, err)
		}

		var userConfig ServerConfig
		if err := yaml.Unmarshal(userConfigYAML, &userConfig); err != nil {
			return nil, fmt.Errorf("failed to parse user config: %w", err)
		}

		// Merge user config on top
		if err := mergo.Merge(&defaults, userConfig, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge user config: %w", err)
		}
	}

	// Initialize maps if they're nil
	if defaults.TopicSets == nil {
		defaults.TopicSets = make(map[string]*TopicSetConfig)
	}

	// Apply smart defaults to topic sets
	for id, setCfg := range defaults.TopicSets {
		if setCfg.ID == "" {
			setCfg.ID = id
		}
		if setCfg.Title == "" {
			setCfg.Title = setCfg.ID
		}
	}

	return &defaults, nil
}

// SaveServerConfig saves the server configuration to the specified path.
func SaveServerConfig(cfg *ServerConfig, path string) error {
	expandedPath := expandPath(path)

	// Ensure directory exists
	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write file
	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
