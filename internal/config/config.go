// Package config provides configuration loading and validation for the CLI
// and server. Values come from an optional JSON file merged with environment
// variables; CLI flags win over both.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultStaleThresholdMinutes is how long a running run may go untouched
// before it can be reclaimed.
const DefaultStaleThresholdMinutes = 30

// Config represents the application configuration. All fields are optional;
// missing values use defaults or must be provided via CLI flags.
type Config struct {
	DatabaseURL string `json:"database_url,omitempty" validate:"omitempty,uri"`
	APIKey      string `json:"api_key,omitempty"`
	ListenAddr  string `json:"listen_addr,omitempty"`

	// StaleThresholdMinutes controls when a running run may be reclaimed.
	StaleThresholdMinutes int `json:"stale_threshold_minutes,omitempty" validate:"gte=0"`

	// Model overrides per tier; empty uses the built-in Gemini defaults.
	ModelLite     string `json:"model_lite,omitempty"`
	ModelStandard string `json:"model_standard,omitempty"`
	ModelAdvanced string `json:"model_advanced,omitempty"`

	Verbose bool `json:"verbose,omitempty"`
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

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

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		APIKey:        os.Getenv("GEMINI_API_KEY"),
		ListenAddr:    os.Getenv("LENS_LISTEN_ADDR"),
		ModelLite:     os.Getenv("LENS_MODEL_LITE"),
		ModelStandard: os.Getenv("LENS_MODEL_STANDARD"),
		ModelAdvanced: os.Getenv("LENS_MODEL_ADVANCED"),
	}
	if raw := os.Getenv("LENS_STALE_THRESHOLD_MINUTES"); raw != "" {
		if minutes, err := strconv.Atoi(raw); err == nil && minutes >= 0 {
			cfg.StaleThresholdMinutes = minutes
		}
	}
	return cfg
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("config error: field %s failed %s validation", first.Field(), first.Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero-valued fields filled from
// defaults. Applied twice: file values over env values, then flag values over
// the result.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.ListenAddr == "" {
		result.ListenAddr = defaults.ListenAddr
	}
	if result.StaleThresholdMinutes == 0 {
		result.StaleThresholdMinutes = defaults.StaleThresholdMinutes
	}
	if result.ModelLite == "" {
		result.ModelLite = defaults.ModelLite
	}
	if result.ModelStandard == "" {
		result.ModelStandard = defaults.ModelStandard
	}
	if result.ModelAdvanced == "" {
		result.ModelAdvanced = defaults.ModelAdvanced
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// StaleThreshold converts the configured minutes to a duration, falling back
// to the default when unset.
func (c *Config) StaleThreshold() time.Duration {
	minutes := c.StaleThresholdMinutes
	if minutes <= 0 {
		minutes = DefaultStaleThresholdMinutes
	}
	return time.Duration(minutes) * time.Minute
}
