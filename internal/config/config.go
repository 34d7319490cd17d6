// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults applied by MergeWithDefaults
const (
	DefaultPort                    = 8080
	DefaultRetrievalTimeoutSeconds = 60
	DefaultLogLevel                = "info"
	DefaultStatusPollIntervalMS    = 1000
	DefaultRegistryPath            = "registry.yaml"
)

// Config represents the configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults, environment variables
// or CLI flags.
type Config struct {
	// Storage and collaborators
	DatabaseURL  string `json:"database_url,omitempty"`  // PostgreSQL connection URL
	APIKey       string `json:"api_key,omitempty"`       // Gemini API key
	RegistryPath string `json:"registry_path,omitempty"` // Data source catalog (YAML or JSON)

	// Server
	Port int `json:"port,omitempty" validate:"omitempty,min=1,max=65535"`

	// Behavior
	RetrievalTimeoutSeconds int    `json:"retrieval_timeout_seconds,omitempty" validate:"omitempty,min=1,max=600"`
	LogLevel                string `json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Verbose                 bool   `json:"verbose,omitempty"` // Print detailed debug information
	StatusPollIntervalMS    int    `json:"status_poll_interval_ms,omitempty" validate:"omitempty,min=50,max=60000"`

	// VariableAliases maps run-time variable names to the shared input they read
	VariableAliases map[string]string `json:"variable_aliases,omitempty" validate:"omitempty,dive,keys,required,endkeys,required"`

	RateLimit RateLimit `json:"rate_limit,omitempty"`
}

// RateLimit configures per-client request limits on the API
type RateLimit struct {
	Disabled          bool     `json:"disabled,omitempty"`
	RequestsPerMinute int      `json:"requests_per_minute,omitempty" validate:"omitempty,min=1"`
	RunsPerHour       int      `json:"runs_per_hour,omitempty" validate:"omitempty,min=1"`
	Allow             []string `json:"allow,omitempty" validate:"omitempty,dive,ip"`
	Deny              []string `json:"deny,omitempty" validate:"omitempty,dive,ip"`
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv returns the values set in the environment
func FromEnv() Config {
	return Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		APIKey:       os.Getenv("GEMINI_API_KEY"),
		RegistryPath: os.Getenv("REGISTRY_PATH"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
	}
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those depend on the
// command being run.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	for name, target := range c.VariableAliases {
		if name == target {
			return fmt.Errorf("config error: variable alias %q points to itself", name)
		}
	}

	if c.RegistryPath != "" {
		if _, err := os.Stat(c.RegistryPath); os.IsNotExist(err) {
			return fmt.Errorf("config error: registry file not found: %s", c.RegistryPath)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults,
// then from the built-in defaults
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.RegistryPath == "" {
		result.RegistryPath = defaults.RegistryPath
	}
	if result.RegistryPath == "" {
		result.RegistryPath = DefaultRegistryPath
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}
	if result.LogLevel == "" {
		result.LogLevel = DefaultLogLevel
	}

	// Int fields: use default if zero
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.Port == 0 {
		result.Port = DefaultPort
	}
	if result.RetrievalTimeoutSeconds == 0 {
		result.RetrievalTimeoutSeconds = defaults.RetrievalTimeoutSeconds
	}
	if result.RetrievalTimeoutSeconds == 0 {
		result.RetrievalTimeoutSeconds = DefaultRetrievalTimeoutSeconds
	}
	if result.StatusPollIntervalMS == 0 {
		result.StatusPollIntervalMS = defaults.StatusPollIntervalMS
	}
	if result.StatusPollIntervalMS == 0 {
		result.StatusPollIntervalMS = DefaultStatusPollIntervalMS
	}

	// Explicit entries in c win over defaults
	if len(defaults.VariableAliases) > 0 {
		merged := make(map[string]string, len(defaults.VariableAliases)+len(c.VariableAliases))
		for k, v := range defaults.VariableAliases {
			merged[k] = v
		}
		for k, v := range c.VariableAliases {
			merged[k] = v
		}
		result.VariableAliases = merged
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// RetrievalTimeout returns the retrieval timeout as a duration
func (c *Config) RetrievalTimeout() time.Duration {
	return time.Duration(c.RetrievalTimeoutSeconds) * time.Second
}

// StatusPollInterval returns the status polling interval as a duration
func (c *Config) StatusPollInterval() time.Duration {
	return time.Duration(c.StatusPollIntervalMS) * time.Millisecond
}
