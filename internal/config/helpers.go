package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultHomeDir returns the default scribe home directory, ~/.scribe, or a
// temp-dir fallback when the user home cannot be determined.
func DefaultHomeDir() string {
	userHome, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".scribe")
	}
	return filepath.Join(userHome, ".scribe")
}

// DefaultConfigPath returns the default config file path for a given home directory
func DefaultConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// DefaultArchivePath returns the default dead-letter archive location for a
// given home directory.
func DefaultArchivePath(homeDir string) string {
	return filepath.Join(homeDir, "dead_letter.db")
}

// configTemplate is the starter config written by InitConfigFile. Durations
// are written as strings so the file stays hand-editable; the loader parses
// both forms.
const configTemplate = `service:
  max_batch_size: %d
  batch_timeout: %s
  enable_introspection: %t
  enable_circuit_breaker: %t
  dead_letter_threshold: %d
  hot_path_timeout: %s
  background_processing_interval: %s
  max_pending_operations: %d
  worker_pool_size: %d
  introspection_limit: %d
  pending_depth_multiple: %d
  breaker:
    failure_threshold: %d
    recovery_timeout: %s
    half_open_max_calls: %d
  retry:
    max_retries: %d
    batch_max_retries: %d
    base_delay: %s
    max_delay: %s
    strategy: %s

neo4j:
  uri: "%s"
  username: %s
  password: "${NEO4J_PASSWORD:%s}"
  database: "%s"
  max_connections: %d
  connection_timeout: %s
  max_retry_time: %s

logging:
  level: %s
  format: %s

observability:
  enabled: %t
  listen_address: "%s"
  health_check_interval: %s

archive:
  path: "%s"
  busy_timeout: %s
`

// InitConfigFile renders cfg into the starter template and writes it to
// path, creating parent directories as needed.
func InitConfigFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(configTemplate,
		cfg.Service.MaxBatchSize,
		cfg.Service.BatchTimeout,
		cfg.Service.EnableIntrospection,
		cfg.Service.EnableCircuitBreaker,
		cfg.Service.DeadLetterThreshold,
		cfg.Service.HotPathTimeout,
		cfg.Service.BackgroundProcessingInterval,
		cfg.Service.MaxPendingOperations,
		cfg.Service.WorkerPoolSize,
		cfg.Service.IntrospectionLimit,
		cfg.Service.PendingDepthMultiple,
		cfg.Service.Breaker.FailureThreshold,
		cfg.Service.Breaker.RecoveryTimeout,
		cfg.Service.Breaker.HalfOpenMaxCalls,
		cfg.Service.Retry.MaxRetries,
		cfg.Service.Retry.BatchMaxRetries,
		cfg.Service.Retry.BaseDelay,
		cfg.Service.Retry.MaxDelay,
		cfg.Service.Retry.Strategy,
		cfg.Neo4j.URI,
		cfg.Neo4j.Username,
		cfg.Neo4j.Password,
		cfg.Neo4j.Database,
		cfg.Neo4j.MaxConnections,
		cfg.Neo4j.ConnectionTimeout,
		cfg.Neo4j.MaxRetryTime,
		cfg.Logging.Level,
		cfg.Logging.Format,
		cfg.Observability.Enabled,
		cfg.Observability.ListenAddress,
		cfg.Observability.HealthCheckInterval,
		cfg.Archive.Path,
		cfg.Archive.BusyTimeout,
	)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
