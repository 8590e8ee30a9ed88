package config

import "time"

// Default values for optional configuration parameters.
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = true

	DefaultDatabasePath = "accounts.db"
	DefaultStatePath    = "message_state.json"

	DefaultFanvueBaseURL      = "https://api.fanvue.com"
	DefaultFanvueAPIVersion   = "2025-06-26"
	DefaultFanvueTimeout      = 30 * time.Second
	DefaultFanvueMessageLimit = 20

	DefaultAIBackend     = "openai"
	DefaultAIBaseURL     = "https://api.openai.com/v1"
	DefaultAIModel       = "gpt-4o"
	DefaultAITemperature = 0.7
	DefaultAIMaxTokens   = 150
	DefaultAITimeout     = 30 * time.Second

	DefaultPollInterval    = 60 * time.Second
	DefaultErrorBackoff    = 5 * time.Second
	DefaultRefreshInterval = 5 * time.Minute
)
