package config

import (
	"encoding/json"
	"fmt"
)

// Config holds all configuration for aide
type Config struct {
	LLM     LLMConfig     `json:"llm"`
	Context ContextConfig `json:"context"`
	Tools   ToolsConfig   `json:"tools"`
	Session SessionConfig `json:"session"`
	Logging LoggingConfig `json:"logging"`
}

// LLMConfig holds provider configuration
type LLMConfig struct {
	Provider     string  `json:"provider"`      // "openai" or "anthropic" wire format
	Model        string  `json:"model"`         // Model name
	APIKey       string  `json:"api_key"`       // API key
	BaseURL      string  `json:"base_url"`      // Custom base URL
	Temperature  float32 `json:"temperature"`   // Temperature for generation
	MaxTokens    int     `json:"max_tokens"`    // Maximum tokens in response
	SystemPrompt string  `json:"system_prompt"` // Base system prompt
}

// ContextConfig holds transcript management configuration
type ContextConfig struct {
	TokenBudget   int `json:"token_budget"`    // Trim threshold for the transcript
	MaxToolRounds int `json:"max_tool_rounds"` // Model/tool round-trips per turn
}

// ToolsConfig holds tool surface settings
type ToolsConfig struct {
	PolicyPath  string `json:"policy_path"`  // YAML allow/deny policy file
	ProjectRoot string `json:"project_root"` // Workspace root, defaults to cwd
}

// SessionConfig holds persistence settings
type SessionConfig struct {
	DatabasePath string `json:"database_path"` // SQLite file, empty disables persistence
}

// LoggingConfig holds log output preferences
type LoggingConfig struct {
	Level string `json:"level"` // "debug", "info", "warn" or "error"
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   4000,
		},
		Context: ContextConfig{
			TokenBudget:   8000,
			MaxToolRounds: 8,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// String returns a JSON string representation of the config
func (c *Config) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error marshaling config: %v", err)
	}
	return string(data)
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() (*Config, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &clone, nil
}
