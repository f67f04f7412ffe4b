// Package config loads the CLI configuration from defaults, an
// optional config file, environment variables, and runtime overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wmsyw/aiWriter-sub000/pkg/continuity"
)

// EnvPrefix is the prefix for environment variable overrides
// (AIWRITER_BACKEND_URL, AIWRITER_LOGGING_LEVEL, ...).
const EnvPrefix = "AIWRITER"

// Config is the fully resolved CLI configuration.
type Config struct {
	Backend    BackendConfig    `mapstructure:"backend"`
	Poll       PollConfig       `mapstructure:"poll"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Continuity ContinuityConfig `mapstructure:"continuity"`
	Autosave   AutosaveConfig   `mapstructure:"autosave"`
	History    HistoryConfig    `mapstructure:"history"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// BackendConfig describes how to reach the authoring backend.
type BackendConfig struct {
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
}

// PollConfig tunes the per-job polling loop.
type PollConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// StreamConfig tunes the push-stream subscription.
type StreamConfig struct {
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
	TypePattern      string        `mapstructure:"type_pattern"`
}

// ContinuityConfig carries the branch gating thresholds.
type ContinuityConfig struct {
	PassThreshold   float64 `mapstructure:"pass_threshold"`
	RejectThreshold float64 `mapstructure:"reject_threshold"`
}

// Thresholds converts the config values into gate thresholds.
func (c ContinuityConfig) Thresholds() continuity.Thresholds {
	return continuity.Thresholds{Pass: c.PassThreshold, Reject: c.RejectThreshold}
}

// AutosaveConfig tunes the debounced autosave.
type AutosaveConfig struct {
	QuietPeriod time.Duration `mapstructure:"quiet_period"`
}

// HistoryConfig locates the local job history database.
type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig controls CLI logging output.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Load resolves configuration with precedence: runtime overrides, then
// environment variables, then the config file (when present), then
// defaults. The optional overrides maps use the same nested keys as
// the config file.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("aiwriter")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/aiwriter")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	for _, o := range overrides {
		if err := v.MergeConfigMap(o); err != nil {
			return nil, fmt.Errorf("apply config overrides: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that would misbehave at runtime.
// Threshold inversion fails here rather than surfacing later as
// nonsense gating verdicts.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return errors.New("backend.url is required")
	}
	if c.Poll.Interval <= 0 {
		return errors.New("poll.interval must be positive")
	}
	if c.Poll.MaxAttempts <= 0 {
		return errors.New("poll.max_attempts must be positive")
	}
	if err := c.Continuity.Thresholds().Validate(); err != nil {
		return fmt.Errorf("continuity thresholds: %w", err)
	}
	if c.Autosave.QuietPeriod <= 0 {
		return errors.New("autosave.quiet_period must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", "http://localhost:8080")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.rate_limit", 10.0)

	v.SetDefault("poll.interval", 2*time.Second)
	v.SetDefault("poll.max_attempts", 150)

	v.SetDefault("stream.reconnect_backoff", 3*time.Second)
	v.SetDefault("stream.type_pattern", "*")

	defaults := continuity.DefaultThresholds()
	v.SetDefault("continuity.pass_threshold", defaults.Pass)
	v.SetDefault("continuity.reject_threshold", defaults.Reject)

	v.SetDefault("autosave.quiet_period", 2*time.Second)

	v.SetDefault("history.path", defaultHistoryPath())

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "aiwriter-history.db"
	}
	return filepath.Join(home, ".local", "share", "aiwriter", "history.db")
}
