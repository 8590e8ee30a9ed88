package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load loads and validates configuration from:
// 1. Default values
// 2. The config file at configPath (optional; missing file is not an error)
// 3. BOT_* environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow a missing config file; defaults and environment cover everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfiguration, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

// setDefaults seeds viper with default values for optional parameters.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.json", DefaultLogJSON)

	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("state.path", DefaultStatePath)

	v.SetDefault("fanvue.base_url", DefaultFanvueBaseURL)
	v.SetDefault("fanvue.api_version", DefaultFanvueAPIVersion)
	v.SetDefault("fanvue.timeout", DefaultFanvueTimeout)
	v.SetDefault("fanvue.message_limit", DefaultFanvueMessageLimit)

	v.SetDefault("ai.backend", DefaultAIBackend)
	// Registered empty so BOT_AI_TOKEN is visible to Unmarshal; viper only
	// considers keys it already knows about when reading the environment.
	v.SetDefault("ai.token", "")
	v.SetDefault("ai.base_url", DefaultAIBaseURL)
	v.SetDefault("ai.model", DefaultAIModel)
	v.SetDefault("ai.temperature", DefaultAITemperature)
	v.SetDefault("ai.max_tokens", DefaultAIMaxTokens)
	v.SetDefault("ai.timeout", DefaultAITimeout)

	v.SetDefault("monitor.poll_interval", DefaultPollInterval)
	v.SetDefault("monitor.error_backoff", DefaultErrorBackoff)
	v.SetDefault("monitor.refresh_interval", DefaultRefreshInterval)
}
