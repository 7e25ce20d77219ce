// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.spatiality/config.yaml)
//  3. Default values
//
// The OpenAI API key is NOT part of this configuration: it lives in the
// credential store (see internal/credential) with the OPENAI_API_KEY
// environment variable as an override.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidModelName indicates the model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidBaseURL indicates the completion service base URL is malformed.
	ErrInvalidBaseURL = errors.New("invalid base URL")

	// ErrInvalidTimeout indicates the request timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid request timeout")

	// ErrInvalidToolRounds indicates the tool round budget is out of range.
	ErrInvalidToolRounds = errors.New("invalid max tool rounds")

	// ErrInvalidRateLimit indicates the request rate limit is negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidLogLevel indicates the log level name is unknown.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

const (
	// DefaultModel is the completion model used when none is configured.
	DefaultModel = "gpt-4o"

	// DefaultRequestTimeout bounds a single completion request.
	DefaultRequestTimeout = 120 * time.Second

	// MaxRequestTimeout is the upper bound for the configurable timeout.
	MaxRequestTimeout = 10 * time.Minute

	// DefaultMaxToolRounds is the tool round budget per submitted prompt.
	DefaultMaxToolRounds = 1

	// MaxAllowedToolRounds caps the configurable budget to keep one prompt
	// from fanning out into an unbounded request chain.
	MaxAllowedToolRounds = 8

	// DefaultDatabaseFile is the sqlite file name inside the data directory.
	DefaultDatabaseFile = "spatiality.db"

	appDir = ".spatiality"
)

// Config stores application configuration.
type Config struct {
	// Completion service
	Model          string  `mapstructure:"model"`
	BaseURL        string  `mapstructure:"base_url"`
	RequestTimeout int     `mapstructure:"request_timeout_seconds"`
	MaxToolRounds  int     `mapstructure:"max_tool_rounds"`
	RequestsPerMin float64 `mapstructure:"requests_per_minute"` // 0 disables client-side limiting

	// Storage
	DataDir      string `mapstructure:"data_dir"`
	DatabaseFile string `mapstructure:"database_file"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // "text" or "json"
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, appDir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("model", DefaultModel)
	v.SetDefault("base_url", "https://api.openai.com/v1")
	v.SetDefault("request_timeout_seconds", int(DefaultRequestTimeout.Seconds()))
	v.SetDefault("max_tool_rounds", DefaultMaxToolRounds)
	v.SetDefault("requests_per_minute", 0)

	v.SetDefault("data_dir", configDir)
	v.SetDefault("database_file", DefaultDatabaseFile)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// bindEnvVariables binds environment overrides explicitly.
// NOTE: OPENAI_API_KEY is read by the credential store, not via Viper.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model", "SPATIALITY_MODEL")
	mustBind("base_url", "SPATIALITY_BASE_URL")
	mustBind("max_tool_rounds", "SPATIALITY_MAX_TOOL_ROUNDS")
	mustBind("data_dir", "SPATIALITY_DATA_DIR")
	mustBind("log_level", "SPATIALITY_LOG_LEVEL")
	mustBind("log_format", "SPATIALITY_LOG_FORMAT")
}

// Validate checks all configuration values. Fail-fast: called by Load so a
// bad configuration never reaches the rest of the application.
func (c *Config) Validate() error {
	if c.Model == "" {
		return ErrInvalidModelName
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.BaseURL)
	}

	if c.RequestTimeout <= 0 || time.Duration(c.RequestTimeout)*time.Second > MaxRequestTimeout {
		return fmt.Errorf("%w: %d seconds (must be 1..%d)",
			ErrInvalidTimeout, c.RequestTimeout, int(MaxRequestTimeout.Seconds()))
	}

	if c.MaxToolRounds < 1 || c.MaxToolRounds > MaxAllowedToolRounds {
		return fmt.Errorf("%w: %d (must be 1..%d)",
			ErrInvalidToolRounds, c.MaxToolRounds, MaxAllowedToolRounds)
	}

	if c.RequestsPerMin < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRateLimit, c.RequestsPerMin)
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// Timeout returns the request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// DatabasePath returns the full path of the sqlite database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, c.DatabaseFile)
}

// ParseLogLevel maps a configured level name onto a slog level.
func ParseLogLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, name)
	}
}
