package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// Loader handles loading configuration from multiple sources
type Loader struct {
	mu            sync.RWMutex
	config        *Config
	configPaths   []string
	schemaLoader  *SchemaLoader
	loadedSources []string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		config:       DefaultConfig(),
		schemaLoader: NewSchemaLoader(),
		configPaths:  getConfigPaths(),
	}
}

// getConfigPaths returns the list of configuration file paths to check, in priority order
func getConfigPaths() []string {
	var paths []string

	// 1. Environment variable override
	if envPath := os.Getenv("AIDE_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	// 2. Project root directory (.aide.jsonc)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".aide.jsonc"))
	}

	// 3. User home directory (~/.aide/config.jsonc)
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".aide", "config.jsonc"))
	}

	return paths
}

// Load loads configuration from multiple sources with priority.
// Later sources override earlier ones (env > project root > user home).
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	mergedConfig := DefaultConfig()
	var loadedSources []string

	for _, path := range l.configPaths {
		if cfg, err := l.loadFromFile(path); err == nil {
			mergedConfig = l.mergeConfigs(mergedConfig, cfg)
			loadedSources = append(loadedSources, path)
		}
	}

	if envOverrides := l.loadFromEnv(); envOverrides != nil {
		mergedConfig = l.mergeConfigs(mergedConfig, envOverrides)
		loadedSources = append(loadedSources, "environment variables")
	}

	l.loadedSources = loadedSources

	if err := l.Validate(mergedConfig); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	l.config = mergedConfig
	return mergedConfig, nil
}

// loadFromFile loads configuration from a single file
func (l *Loader) loadFromFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Remove JSONC comments
	cleanedContent, err := l.stripComments(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSONC in %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal([]byte(cleanedContent), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse JSON in %s: %w", path, err)
	}

	return &cfg, nil
}

// stripComments removes JSONC comments (// and /* */ style)
func (l *Loader) stripComments(content string) (string, error) {
	// gjson tolerates comments natively; re-serialize to clean JSON
	if !gjson.Valid(content) {
		cleaned := l.manualStripComments(content)
		if !gjson.Valid(cleaned) {
			return "", fmt.Errorf("invalid JSONC format")
		}
		return cleaned, nil
	}

	result := gjson.Parse(content)
	return result.Raw, nil
}

// manualStripComments manually removes JavaScript-style comments
func (l *Loader) manualStripComments(content string) string {
	lines := strings.Split(content, "\n")
	var cleaned []string
	inBlockComment := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "/*") {
			inBlockComment = true
			if strings.Contains(trimmed, "*/") {
				inBlockComment = false
				parts := strings.SplitN(trimmed, "*/", 2)
				if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
					cleaned = append(cleaned, strings.TrimSpace(parts[1]))
				}
			}
			continue
		}

		if inBlockComment {
			if strings.Contains(trimmed, "*/") {
				inBlockComment = false
				parts := strings.SplitN(trimmed, "*/", 2)
				if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
					cleaned = append(cleaned, strings.TrimSpace(parts[1]))
				}
			}
			continue
		}

		if strings.HasPrefix(trimmed, "//") {
			continue
		}

		if idx := strings.Index(trimmed, "//"); idx > 0 {
			cleaned = append(cleaned, strings.TrimSpace(trimmed[:idx]))
			continue
		}

		cleaned = append(cleaned, line)
	}

	return strings.Join(cleaned, "\n")
}

// loadFromEnv loads configuration overrides from environment variables
func (l *Loader) loadFromEnv() *Config {
	cfg := &Config{}

	if v := os.Getenv("AIDE_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("AIDE_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("AIDE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("AIDE_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("AIDE_LLM_TEMPERATURE"); v != "" {
		var temp float32
		if _, err := fmt.Sscanf(v, "%f", &temp); err == nil {
			cfg.LLM.Temperature = temp
		}
	}
	if v := os.Getenv("AIDE_LLM_MAX_TOKENS"); v != "" {
		var tokens int
		if _, err := fmt.Sscanf(v, "%d", &tokens); err == nil {
			cfg.LLM.MaxTokens = tokens
		}
	}

	if v := os.Getenv("AIDE_CONTEXT_TOKEN_BUDGET"); v != "" {
		var tokens int
		if _, err := fmt.Sscanf(v, "%d", &tokens); err == nil {
			cfg.Context.TokenBudget = tokens
		}
	}

	if v := os.Getenv("AIDE_TOOLS_POLICY"); v != "" {
		cfg.Tools.PolicyPath = v
	}
	if v := os.Getenv("AIDE_PROJECT_ROOT"); v != "" {
		cfg.Tools.ProjectRoot = v
	}
	if v := os.Getenv("AIDE_SESSION_DB"); v != "" {
		cfg.Session.DatabasePath = v
	}
	if v := os.Getenv("AIDE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	// Return nil if no environment variables were set
	if cfg.LLM.Provider == "" && cfg.LLM.Model == "" && cfg.LLM.APIKey == "" &&
		cfg.LLM.BaseURL == "" && cfg.LLM.Temperature == 0 && cfg.LLM.MaxTokens == 0 &&
		cfg.Context.TokenBudget == 0 && cfg.Tools.PolicyPath == "" &&
		cfg.Tools.ProjectRoot == "" && cfg.Session.DatabasePath == "" &&
		cfg.Logging.Level == "" {
		return nil
	}

	return cfg
}

// mergeConfigs merges two configurations, with cfg2 overriding cfg1
func (l *Loader) mergeConfigs(cfg1, cfg2 *Config) *Config {
	if cfg2 == nil {
		return cfg1
	}

	merged := *cfg1

	if cfg2.LLM.Provider != "" {
		merged.LLM.Provider = cfg2.LLM.Provider
	}
	if cfg2.LLM.Model != "" {
		merged.LLM.Model = cfg2.LLM.Model
	}
	if cfg2.LLM.APIKey != "" {
		merged.LLM.APIKey = cfg2.LLM.APIKey
	}
	if cfg2.LLM.BaseURL != "" {
		merged.LLM.BaseURL = cfg2.LLM.BaseURL
	}
	if cfg2.LLM.Temperature != 0 {
		merged.LLM.Temperature = cfg2.LLM.Temperature
	}
	if cfg2.LLM.MaxTokens != 0 {
		merged.LLM.MaxTokens = cfg2.LLM.MaxTokens
	}
	if cfg2.LLM.SystemPrompt != "" {
		merged.LLM.SystemPrompt = cfg2.LLM.SystemPrompt
	}

	if cfg2.Context.TokenBudget != 0 {
		merged.Context.TokenBudget = cfg2.Context.TokenBudget
	}
	if cfg2.Context.MaxToolRounds != 0 {
		merged.Context.MaxToolRounds = cfg2.Context.MaxToolRounds
	}

	if cfg2.Tools.PolicyPath != "" {
		merged.Tools.PolicyPath = cfg2.Tools.PolicyPath
	}
	if cfg2.Tools.ProjectRoot != "" {
		merged.Tools.ProjectRoot = cfg2.Tools.ProjectRoot
	}

	if cfg2.Session.DatabasePath != "" {
		merged.Session.DatabasePath = cfg2.Session.DatabasePath
	}

	if cfg2.Logging.Level != "" {
		merged.Logging.Level = cfg2.Logging.Level
	}

	return &merged
}

// Validate validates the configuration against the JSON schema
func (l *Loader) Validate(cfg *Config) error {
	return l.schemaLoader.Validate(cfg)
}

// Save saves the configuration to the specified path
func (l *Loader) Save(cfg *Config, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.Validate(cfg); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetLoadedSources returns the list of sources that were successfully loaded
func (l *Loader) GetLoadedSources() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sources := make([]string, len(l.loadedSources))
	copy(sources, l.loadedSources)
	return sources
}

// LoadConfig is a convenience function that loads configuration with default settings
func LoadConfig() (*Config, error) {
	loader := NewLoader()
	return loader.Load()
}
