package provenance

import (
	"fmt"
	"math"
	"time"

	"github.com/Lego4005/scribe/internal/types"
)

// Config holds the runtime knobs of the write-behind service. A validated
// copy is snapshotted by the executor at the start of every drain cycle, so
// UpdateConfig changes take effect on the next cycle without locking the
// loop.
type Config struct {
	// MaxBatchSize caps how many operations one drain cycle pops from the
	// pending queue.
	MaxBatchSize int `json:"max_batch_size"`

	// BatchTimeout bounds each store attempt; an attempt that exceeds it
	// classifies as a timeout and is retried like a transient failure.
	BatchTimeout time.Duration `json:"batch_timeout"`

	// EnableIntrospection controls per-attempt execution record collection.
	EnableIntrospection bool `json:"enable_introspection"`

	// EnableCircuitBreaker controls whether the breaker gates attempts.
	EnableCircuitBreaker bool `json:"enable_circuit_breaker"`

	// DeadLetterThreshold is the failed-store size above which the oldest
	// failure is evicted to the dead-letter queue.
	DeadLetterThreshold int `json:"dead_letter_threshold"`

	// HotPathTimeout is the submission latency contract: submit returns
	// within this bound because no store I/O happens on that path.
	HotPathTimeout time.Duration `json:"hot_path_timeout"`

	// BackgroundProcessingInterval is the drain cycle cadence.
	BackgroundProcessingInterval time.Duration `json:"background_processing_interval"`

	// MaxPendingOperations bounds the pending queue; submissions fail fast
	// when it is full.
	MaxPendingOperations int `json:"max_pending_operations"`

	// WorkerPoolSize bounds parallel execution within one drained batch.
	// 1 executes strictly in drain order.
	WorkerPoolSize int `json:"worker_pool_size"`

	// IntrospectionLimit is the rolling window size, clamped to [1, 1000].
	IntrospectionLimit int `json:"introspection_limit"`

	// PendingDepthMultiple: health reports the queue-depth sub-check
	// unhealthy once pending exceeds this multiple of MaxBatchSize.
	PendingDepthMultiple int `json:"pending_depth_multiple"`

	// Circuit breaker settings.
	FailureThreshold int           `json:"failure_threshold"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`
	HalfOpenMaxCalls int           `json:"half_open_max_calls"`

	// Default retry policy stamped onto submitted operations.
	DefaultMaxRetries int           `json:"default_max_retries"`
	BatchMaxRetries   int           `json:"batch_max_retries"`
	BaseDelay         time.Duration `json:"base_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	Strategy          RetryStrategy `json:"strategy"`
}

// DefaultServiceConfig returns the production defaults.
func DefaultServiceConfig() Config {
	return Config{
		MaxBatchSize:                 25,
		BatchTimeout:                 30 * time.Second,
		EnableIntrospection:          true,
		EnableCircuitBreaker:         true,
		DeadLetterThreshold:          100,
		HotPathTimeout:               50 * time.Millisecond,
		BackgroundProcessingInterval: 1 * time.Second,
		MaxPendingOperations:         10000,
		WorkerPoolSize:               4,
		IntrospectionLimit:           500,
		PendingDepthMultiple:         10,

		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenMaxCalls: 3,

		DefaultMaxRetries: 3,
		BatchMaxRetries:   5,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		Strategy:          StrategyExponential,
	}
}

// Validate checks every knob.
func (c Config) Validate() error {
	checks := []struct {
		ok  bool
		msg string
	}{
		{c.MaxBatchSize >= 1, "max_batch_size must be at least 1"},
		{c.BatchTimeout > 0, "batch_timeout must be positive"},
		{c.DeadLetterThreshold >= 1, "dead_letter_threshold must be at least 1"},
		{c.HotPathTimeout > 0, "hot_path_timeout must be positive"},
		{c.BackgroundProcessingInterval > 0, "background_processing_interval must be positive"},
		{c.MaxPendingOperations >= 1, "max_pending_operations must be at least 1"},
		{c.WorkerPoolSize >= 1, "worker_pool_size must be at least 1"},
		{c.IntrospectionLimit >= 1 && c.IntrospectionLimit <= maxIntrospectionLimit,
			fmt.Sprintf("introspection_limit must be between 1 and %d", maxIntrospectionLimit)},
		{c.PendingDepthMultiple >= 1, "pending_depth_multiple must be at least 1"},
		{c.FailureThreshold >= 1, "failure_threshold must be at least 1"},
		{c.RecoveryTimeout > 0, "recovery_timeout must be positive"},
		{c.HalfOpenMaxCalls >= 1, "half_open_max_calls must be at least 1"},
		{c.DefaultMaxRetries >= 0, "default_max_retries cannot be negative"},
		{c.BatchMaxRetries >= 0, "batch_max_retries cannot be negative"},
		{c.BaseDelay > 0, "base_delay must be positive"},
		{c.MaxDelay >= c.BaseDelay, "max_delay must not be below base_delay"},
		{c.Strategy.IsValid(), "strategy must be one of exponential, linear, fixed, fibonacci"},
	}

	for _, check := range checks {
		if !check.ok {
			return types.NewError(types.CONFIG_VALIDATION_FAILED, check.msg)
		}
	}
	return nil
}

// withUpdates applies a map of recognized option keys to a copy of the
// config. The first unknown key or malformed value aborts with an error and
// the original config is untouched, so callers get all-or-nothing semantics.
func (c Config) withUpdates(updates map[string]any) (Config, error) {
	next := c

	for key, value := range updates {
		var err error
		switch key {
		case "max_batch_size":
			next.MaxBatchSize, err = asInt(key, value)
		case "batch_timeout":
			next.BatchTimeout, err = asDuration(key, value)
		case "enable_introspection":
			next.EnableIntrospection, err = asBool(key, value)
		case "enable_circuit_breaker":
			next.EnableCircuitBreaker, err = asBool(key, value)
		case "dead_letter_threshold":
			next.DeadLetterThreshold, err = asInt(key, value)
		case "hot_path_timeout":
			next.HotPathTimeout, err = asDuration(key, value)
		case "background_processing_interval":
			next.BackgroundProcessingInterval, err = asDuration(key, value)
		case "max_pending_operations":
			next.MaxPendingOperations, err = asInt(key, value)
		case "worker_pool_size":
			next.WorkerPoolSize, err = asInt(key, value)
		case "introspection_limit":
			next.IntrospectionLimit, err = asInt(key, value)
		case "pending_depth_multiple":
			next.PendingDepthMultiple, err = asInt(key, value)
		default:
			return c, types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("unknown config option %q", key))
		}
		if err != nil {
			return c, err
		}
	}

	if err := next.Validate(); err != nil {
		return c, err
	}
	return next, nil
}

func asInt(key string, value any) (int, error) {
	switch n := value.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("config option %q must be an integer, got %v", key, n))
		}
		return int(n), nil
	default:
		return 0, types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("config option %q must be an integer, got %T", key, value))
	}
}

func asDuration(key string, value any) (time.Duration, error) {
	switch d := value.(type) {
	case time.Duration:
		return d, nil
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("config option %q has unparseable duration %q", key, d))
		}
		return parsed, nil
	default:
		return 0, types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("config option %q must be a duration or duration string, got %T", key, value))
	}
}

func asBool(key string, value any) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("config option %q must be a boolean, got %T", key, value))
	}
	return b, nil
}
