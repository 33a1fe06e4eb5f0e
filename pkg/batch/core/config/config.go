// Package config holds the application configuration of the batch engine and the
// loader that assembles it from YAML, a .env file and environment variables.
package config

import (
	"time"

	dbconfig "github.com/tigerroll/surfin-flow/pkg/batch/adapter/database/config"
	storageconfig "github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage/config"
)

// EmbeddedConfig holds the raw bytes of the YAML configuration, usually embedded by main.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelSilent LogLevel = "SILENT"
)

// Repository types accepted by batch.repository.type.
const (
	RepositoryTypeInMemory = "inmemory"
	RepositoryTypeSQL      = "sql"
)

// RetryConfig holds the default retry policy applied to reads and chunk writes.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
	// RetryableExceptions lists registered error type names treated as retryable
	// in addition to errors flagged retryable by their BatchError.
	RetryableExceptions []string `yaml:"retryable_exceptions"`
}

// RepositoryConfig selects the history store.
type RepositoryConfig struct {
	Type  string `yaml:"type"`   // "inmemory" or "sql"
	DBRef string `yaml:"db_ref"` // datasource name used by the sql repository
	// AutoMigrate applies the embedded schema migrations on startup.
	AutoMigrate bool `yaml:"auto_migrate"`
	// ClaimTTL bounds how long a distributed claim survives its owner.
	ClaimTTL time.Duration `yaml:"claim_ttl"`
	// DistributedClaim wraps the repository with the redis claim when true.
	DistributedClaim bool `yaml:"distributed_claim"`
}

// BatchConfig holds settings of the batch engine itself.
type BatchConfig struct {
	// JobName is the registry entry run by the CLI when no job is given on the command line.
	JobName string `yaml:"job_name"`
	// JobDefinitionPath optionally points at a YAML job definition file.
	JobDefinitionPath      string           `yaml:"job_definition_path"`
	ChunkSize              int              `yaml:"chunk_size"`
	PollingIntervalSeconds int              `yaml:"polling_interval_seconds"`
	Retry                  RetryConfig      `yaml:"retry"`
	Repository             RepositoryConfig `yaml:"repository"`
	// Async makes the CLI submit the job in the background and follow it by polling the
	// history every PollingIntervalSeconds, instead of blocking on the run.
	Async bool `yaml:"async"`
}

// RedisConfig configures the redis client used by the distributed claim and job
// notifications.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// NotificationChannel receives a JSON message for every finished job execution when set.
	NotificationChannel string `yaml:"notification_channel"`
}

// HTTPConfig configures the run-request API.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	// ShutdownTimeout bounds graceful shutdown of the listener.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// MetricsConfig holds prometheus settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// AsyncBufferSize queues metric events for a background goroutine when positive.
	AsyncBufferSize int `yaml:"async_buffer_size"`
}

// TracingConfig holds OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Protocol    string  `yaml:"protocol"` // "grpc" or "http"
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Tracing  TracingConfig `yaml:"tracing"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// MaskedParameterKeys are JobParameters keys whose values are masked when rendered or persisted.
	MaskedParameterKeys []string `yaml:"masked_parameter_keys"`
}

// SurfinConfig holds everything under the "surfin" top-level key.
type SurfinConfig struct {
	Batch    BatchConfig                        `yaml:"batch"`
	System   SystemConfig                       `yaml:"system"`
	Security SecurityConfig                     `yaml:"security"`
	Database map[string]dbconfig.DatabaseConfig `yaml:"database"`
	Storage  map[string]storageconfig.Config    `yaml:"storage"`
	Redis    RedisConfig                        `yaml:"redis"`
	HTTP     HTTPConfig                         `yaml:"http"`
}

// Config is the root of the application configuration.
type Config struct {
	Surfin         SurfinConfig   `yaml:"surfin"`
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Surfin: SurfinConfig{
			Batch: BatchConfig{
				ChunkSize:              10,
				PollingIntervalSeconds: 1,
				Retry: RetryConfig{
					MaxAttempts:     3,
					InitialInterval: 100 * time.Millisecond,
					MaxInterval:     2 * time.Second,
					Multiplier:      2,
				},
				Repository: RepositoryConfig{
					Type:     RepositoryTypeInMemory,
					DBRef:    "metadata",
					ClaimTTL: 10 * time.Minute,
				},
			},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO", Format: "console"},
				Tracing: TracingConfig{
					Protocol:    "grpc",
					ServiceName: "surfin-flow",
					SampleRatio: 1,
				},
			},
			Security: SecurityConfig{
				MaskedParameterKeys: []string{"password", "api_key", "secret"},
			},
			Database: map[string]dbconfig.DatabaseConfig{},
			Storage:  map[string]storageconfig.Config{},
			HTTP: HTTPConfig{
				Addr:            ":8080",
				ShutdownTimeout: 10 * time.Second,
			},
		},
	}
}
