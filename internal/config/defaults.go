package config

import (
	"time"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			MaxBatchSize:                 25,
			BatchTimeout:                 30 * time.Second,
			EnableIntrospection:          true,
			EnableCircuitBreaker:         true,
			DeadLetterThreshold:          100,
			HotPathTimeout:               50 * time.Millisecond,
			BackgroundProcessingInterval: time.Second,
			MaxPendingOperations:         10000,
			WorkerPoolSize:               4,
			IntrospectionLimit:           500,
			PendingDepthMultiple:         10,
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				RecoveryTimeout:  30 * time.Second,
				HalfOpenMaxCalls: 3,
			},
			Retry: RetryConfig{
				MaxRetries:      3,
				BatchMaxRetries: 5,
				BaseDelay:       100 * time.Millisecond,
				MaxDelay:        30 * time.Second,
				Strategy:        "exponential",
			},
		},
		Neo4j: Neo4jConfig{
			URI:               "bolt://localhost:7687",
			Username:          "neo4j",
			Password:          "password",
			Database:          "",
			MaxConnections:    50,
			ConnectionTimeout: 30 * time.Second,
			MaxRetryTime:      30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			Enabled:             true,
			ListenAddress:       "localhost:9090",
			HealthCheckInterval: 30 * time.Second,
		},
		Archive: ArchiveConfig{
			Path:        "",
			BusyTimeout: 5 * time.Second,
		},
	}
}
