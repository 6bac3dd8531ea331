package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all sqlscout configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM gateway configuration
	LLM LLMConfig `yaml:"llm"`

	// Agent loop configuration
	Agent AgentConfig `yaml:"agent"`

	// Session memory configuration
	Memory MemoryConfig `yaml:"memory"`

	// Dataset registry configuration
	Datasets DatasetsConfig `yaml:"datasets"`

	// Knowledge (schema + domain instructions) configuration
	Knowledge KnowledgeConfig `yaml:"knowledge"`

	// Executor configuration
	Executor ExecutorConfig `yaml:"executor"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the LLM gateway.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// AgentConfig configures the orchestration loop.
type AgentConfig struct {
	// Maximum planner iterations per request
	MaxIterations int `yaml:"max_iterations"`

	// Wall-clock budget per request
	RequestTimeout string `yaml:"request_timeout"`

	// Resolutions below this confidence are flagged but still used
	FollowupConfidenceThreshold float64 `yaml:"followup_confidence_threshold"`

	// Execution error substrings that trigger a refinement retry
	CriticalErrorKeywords []string `yaml:"critical_error_keywords"`
}

// MemoryConfig configures the session memory store.
type MemoryConfig struct {
	// Maximum history entries per session before oldest-first eviction
	HistoryLimit int `yaml:"history_limit"`

	// Sessions idle longer than this are swept; empty disables the janitor
	SessionTTL string `yaml:"session_ttl"`
}

// DatasetsConfig configures the dataset registry.
type DatasetsConfig struct {
	// Optional YAML registry file; built-in datasets are used when empty
	RegistryPath string `yaml:"registry_path"`

	// Dataset used when a request names none
	Default string `yaml:"default"`
}

// KnowledgeConfig configures schema introspection and domain instructions.
type KnowledgeConfig struct {
	// Directory of *.md domain instruction files, hot-reloaded
	InstructionsDir string `yaml:"instructions_dir"`

	// Schema cache lifetime
	SchemaCacheTTL string `yaml:"schema_cache_ttl"`
}

// ExecutorConfig configures the SQL execution layer.
type ExecutorConfig struct {
	// Maximum rows returned from a single query
	MaxRows int `yaml:"max_rows"`

	// Per-query timeout
	QueryTimeout string `yaml:"query_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "sqlscout",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider: "anthropic",
			// Model and BaseURL left empty so the selected provider's
			// own defaults apply.
			Timeout: "120s",
		},

		Agent: AgentConfig{
			MaxIterations:               10,
			RequestTimeout:              "120s",
			FollowupConfidenceThreshold: 0.8,
			CriticalErrorKeywords: []string{
				"syntax error",
				"parse error",
				"invalid sql",
				"unknown column",
				"unknown table",
				"no such table",
				"no such column",
			},
		},

		Memory: MemoryConfig{
			HistoryLimit: 10,
			SessionTTL:   "24h",
		},

		Datasets: DatasetsConfig{
			Default: "sales",
		},

		Knowledge: KnowledgeConfig{
			InstructionsDir: "instructions",
			SchemaCacheTTL:  "5m",
		},

		Executor: ExecutorConfig{
			MaxRows:      1000,
			QueryTimeout: "30s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "sqlscout.log",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
		// Defaults stand when no config file exists.
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// LLM API key from environment (check in priority order)
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "anthropic"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider != "gemini" {
			// Model and base URL belong to the previous provider.
			c.LLM.Model = ""
			c.LLM.BaseURL = ""
			c.LLM.Provider = "gemini"
		}
	}
	if key := os.Getenv("SQLSCOUT_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}

	if url := os.Getenv("SQLSCOUT_LLM_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if path := os.Getenv("SQLSCOUT_REGISTRY"); path != "" {
		c.Datasets.RegistryPath = path
	}
	if dir := os.Getenv("SQLSCOUT_INSTRUCTIONS"); dir != "" {
		c.Knowledge.InstructionsDir = dir
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetRequestTimeout returns the per-request wall-clock budget as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Agent.RequestTimeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetQueryTimeout returns the per-query executor timeout as a duration.
func (c *Config) GetQueryTimeout() time.Duration {
	d, err := time.ParseDuration(c.Executor.QueryTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetSessionTTL returns the session TTL as a duration. Zero disables sweeping.
func (c *Config) GetSessionTTL() time.Duration {
	if c.Memory.SessionTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Memory.SessionTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// GetSchemaCacheTTL returns the schema cache lifetime as a duration.
func (c *Config) GetSchemaCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Knowledge.SchemaCacheTTL)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"anthropic", "gemini"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set ANTHROPIC_API_KEY, GEMINI_API_KEY, or SQLSCOUT_API_KEY)")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be at least 1, got %d", c.Agent.MaxIterations)
	}
	if c.Memory.HistoryLimit < 1 {
		return fmt.Errorf("memory.history_limit must be at least 1, got %d", c.Memory.HistoryLimit)
	}

	return nil
}
