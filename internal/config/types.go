// Package config manages application configuration from default values,
// an optional config.yaml file, and BOT_* environment variables.
package config

import (
	"errors"
	"time"
)

// ErrConfiguration indicates that configuration could not be loaded or validated.
var ErrConfiguration = errors.New("configuration error")

// Config defines the application configuration. Values can be set via
// environment variables prefixed with BOT_ (e.g., BOT_AI_TOKEN) or through
// config.yaml.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	State    StateConfig    `mapstructure:"state"`
	Fanvue   FanvueConfig   `mapstructure:"fanvue"`
	AI       AIConfig       `mapstructure:"ai"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds settings for the account database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// StateConfig holds settings for the processed-message state file.
type StateConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// FanvueConfig holds settings for the Fanvue platform API.
type FanvueConfig struct {
	BaseURL      string        `mapstructure:"base_url"      validate:"required,url"`
	APIVersion   string        `mapstructure:"api_version"   validate:"required"`
	Timeout      time.Duration `mapstructure:"timeout"       validate:"required,min=1s,max=5m"`
	MessageLimit int           `mapstructure:"message_limit" validate:"required,min=1,max=100"`
}

// AIConfig holds settings for the reply generation service. The backend,
// credentials, and sampling parameters are fixed per deployment; only the
// persona varies per account.
type AIConfig struct {
	Backend     string        `mapstructure:"backend"     validate:"required,oneof=openai gemini"`
	Token       string        `mapstructure:"token"       validate:"required"`
	BaseURL     string        `mapstructure:"base_url"    validate:"omitempty,url"`
	Model       string        `mapstructure:"model"       validate:"required"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	MaxTokens   int           `mapstructure:"max_tokens"  validate:"required,min=1"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"required,min=1s,max=10m"`
}

// MonitorConfig holds pacing settings for the per-account monitor loops and
// the orchestrator's account refresh.
type MonitorConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"    validate:"required,min=1s"`
	ErrorBackoff    time.Duration `mapstructure:"error_backoff"    validate:"required,min=1s"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"required,min=10s"`
}
