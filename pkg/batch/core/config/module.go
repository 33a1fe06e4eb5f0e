package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts the logging section.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Surfin.System.Logging
}

// NewRetryConfigProvider extracts the default retry policy.
func NewRetryConfigProvider(cfg *Config) *RetryConfig {
	return &cfg.Surfin.Batch.Retry
}

// Module provides *Config and its commonly used sections. The application supplies
// EmbeddedConfig (and optionally a named "envFilePath" string).
var Module = fx.Options(
	fx.Provide(
		func() EnvironmentExpander { return NewOsEnvironmentExpander() },
		NewConfigProvider,
		NewLoggingConfigProvider,
		NewRetryConfigProvider,
	),
)
