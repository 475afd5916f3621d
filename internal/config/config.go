package config

import (
	"time"
)

// Config is the root configuration for the scribe service.
type Config struct {
	Service       ServiceConfig       `mapstructure:"service" yaml:"service" validate:"required"`
	Neo4j         Neo4jConfig         `mapstructure:"neo4j" yaml:"neo4j" validate:"required"`
	Logging       LoggingConfig       `mapstructure:"logging" yaml:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
	Archive       ArchiveConfig       `mapstructure:"archive" yaml:"archive,omitempty"`
}

// ServiceConfig contains the write-behind pipeline settings.
type ServiceConfig struct {
	// MaxBatchSize is the number of pending operations drained per cycle.
	MaxBatchSize int `mapstructure:"max_batch_size" yaml:"max_batch_size" validate:"min=1,max=1000"`

	// BatchTimeout bounds the execution of one drained batch.
	BatchTimeout time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout" validate:"min=1ms"`

	// EnableIntrospection controls collecting per-operation execution records.
	EnableIntrospection bool `mapstructure:"enable_introspection" yaml:"enable_introspection"`

	// EnableCircuitBreaker controls the breaker in front of graph writes.
	EnableCircuitBreaker bool `mapstructure:"enable_circuit_breaker" yaml:"enable_circuit_breaker"`

	// DeadLetterThreshold is the failed-store size above which the oldest
	// failed operation is evicted to the dead-letter queue.
	DeadLetterThreshold int `mapstructure:"dead_letter_threshold" yaml:"dead_letter_threshold" validate:"min=1"`

	// HotPathTimeout is the maximum wall-clock time a submit call may take.
	HotPathTimeout time.Duration `mapstructure:"hot_path_timeout" yaml:"hot_path_timeout" validate:"min=1ms"`

	// BackgroundProcessingInterval is the cadence of the executor loop.
	BackgroundProcessingInterval time.Duration `mapstructure:"background_processing_interval" yaml:"background_processing_interval" validate:"min=1ms"`

	// MaxPendingOperations bounds the pending queue; submissions beyond it fail.
	MaxPendingOperations int `mapstructure:"max_pending_operations" yaml:"max_pending_operations" validate:"min=1"`

	// WorkerPoolSize is the parallelism within one drained batch.
	WorkerPoolSize int `mapstructure:"worker_pool_size" yaml:"worker_pool_size" validate:"min=1,max=64"`

	// IntrospectionLimit is the rolling-window size of execution records.
	IntrospectionLimit int `mapstructure:"introspection_limit" yaml:"introspection_limit" validate:"min=1,max=1000"`

	// PendingDepthMultiple: the service reports degraded when the pending
	// queue grows beyond PendingDepthMultiple * MaxBatchSize.
	PendingDepthMultiple int `mapstructure:"pending_depth_multiple" yaml:"pending_depth_multiple" validate:"min=1"`

	Breaker BreakerConfig `mapstructure:"breaker" yaml:"breaker"`
	Retry   RetryConfig   `mapstructure:"retry" yaml:"retry"`
}

// BreakerConfig contains circuit breaker tuning.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that trips the
	// breaker from closed to open.
	FailureThreshold int `mapstructure:"failure_threshold" yaml:"failure_threshold" validate:"min=1"`

	// RecoveryTimeout is how long the breaker stays open before allowing
	// half-open probes.
	RecoveryTimeout time.Duration `mapstructure:"recovery_timeout" yaml:"recovery_timeout" validate:"min=1ms"`

	// HalfOpenMaxCalls caps the probe attempts allowed while half-open.
	HalfOpenMaxCalls int `mapstructure:"half_open_max_calls" yaml:"half_open_max_calls" validate:"min=1"`
}

// RetryConfig contains the default retry policy applied to submissions.
type RetryConfig struct {
	// MaxRetries is the retry budget for single-statement operations.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" validate:"min=0,max=20"`

	// BatchMaxRetries is the retry budget for batch operations.
	BatchMaxRetries int `mapstructure:"batch_max_retries" yaml:"batch_max_retries" validate:"min=0,max=20"`

	// BaseDelay seeds the backoff schedule.
	BaseDelay time.Duration `mapstructure:"base_delay" yaml:"base_delay" validate:"min=1ms"`

	// MaxDelay caps any computed backoff delay.
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay" validate:"min=1ms"`

	// Strategy selects the backoff curve.
	Strategy string `mapstructure:"strategy" yaml:"strategy" validate:"oneof=exponential linear fixed fibonacci"`
}

// Neo4jConfig contains Neo4j connection settings.
type Neo4jConfig struct {
	URI               string        `mapstructure:"uri" yaml:"uri" validate:"required"`
	Username          string        `mapstructure:"username" yaml:"username" validate:"required"`
	Password          string        `mapstructure:"password" yaml:"password" validate:"required"`
	Database          string        `mapstructure:"database" yaml:"database"`
	MaxConnections    int           `mapstructure:"max_connections" yaml:"max_connections" validate:"min=1,max=500"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout" yaml:"connection_timeout" validate:"min=1s"`
	MaxRetryTime      time.Duration `mapstructure:"max_retry_time" yaml:"max_retry_time" validate:"min=1s"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// ObservabilityConfig contains the operator HTTP listener settings used for
// the health and metrics endpoints.
type ObservabilityConfig struct {
	// Enabled controls whether the operator listener is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ListenAddress is the bind address for /healthz and /metrics.
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`

	// HealthCheckInterval is the cadence of periodic component checks.
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval" yaml:"health_check_interval"`
}

// ArchiveConfig contains the dead-letter archive settings. The archive is a
// local sqlite database that preserves dead-lettered operations across
// restarts. An empty path disables archiving.
type ArchiveConfig struct {
	Path        string        `mapstructure:"path" yaml:"path,omitempty"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout,omitempty"`
}
