package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// ConfigLoader handles loading configuration from files.
type ConfigLoader interface {
	Load(path string) (*Config, error)
	LoadWithDefaults(path string) (*Config, error)
}

// viperConfigLoader implements ConfigLoader using Viper.
type viperConfigLoader struct {
	validator ConfigValidator
}

// NewConfigLoader creates a new ConfigLoader instance.
func NewConfigLoader(validator ConfigValidator) ConfigLoader {
	return &viperConfigLoader{
		validator: validator,
	}
}

// Load loads configuration from the specified file path. Keys absent from the
// file fall back to DefaultConfig values, so a partial file is valid.
// Returns an error if the file doesn't exist or cannot be parsed.
func (l *viperConfigLoader) Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Re-apply string fields from the raw settings with ${VAR} references
	// resolved against the environment.
	applyInterpolation(&cfg, v.AllSettings())

	if err := l.validator.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration.
func (l *viperConfigLoader) LoadWithDefaults(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := l.validator.Validate(cfg); err != nil {
			return nil, fmt.Errorf("default configuration validation failed: %w", err)
		}
		return cfg, nil
	}

	return l.Load(path)
}

// setDefaults seeds viper with DefaultConfig values so keys missing from the
// file resolve to defaults instead of zero values.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("service.max_batch_size", d.Service.MaxBatchSize)
	v.SetDefault("service.batch_timeout", d.Service.BatchTimeout)
	v.SetDefault("service.enable_introspection", d.Service.EnableIntrospection)
	v.SetDefault("service.enable_circuit_breaker", d.Service.EnableCircuitBreaker)
	v.SetDefault("service.dead_letter_threshold", d.Service.DeadLetterThreshold)
	v.SetDefault("service.hot_path_timeout", d.Service.HotPathTimeout)
	v.SetDefault("service.background_processing_interval", d.Service.BackgroundProcessingInterval)
	v.SetDefault("service.max_pending_operations", d.Service.MaxPendingOperations)
	v.SetDefault("service.worker_pool_size", d.Service.WorkerPoolSize)
	v.SetDefault("service.introspection_limit", d.Service.IntrospectionLimit)
	v.SetDefault("service.pending_depth_multiple", d.Service.PendingDepthMultiple)
	v.SetDefault("service.breaker.failure_threshold", d.Service.Breaker.FailureThreshold)
	v.SetDefault("service.breaker.recovery_timeout", d.Service.Breaker.RecoveryTimeout)
	v.SetDefault("service.breaker.half_open_max_calls", d.Service.Breaker.HalfOpenMaxCalls)
	v.SetDefault("service.retry.max_retries", d.Service.Retry.MaxRetries)
	v.SetDefault("service.retry.batch_max_retries", d.Service.Retry.BatchMaxRetries)
	v.SetDefault("service.retry.base_delay", d.Service.Retry.BaseDelay)
	v.SetDefault("service.retry.max_delay", d.Service.Retry.MaxDelay)
	v.SetDefault("service.retry.strategy", d.Service.Retry.Strategy)

	v.SetDefault("neo4j.uri", d.Neo4j.URI)
	v.SetDefault("neo4j.username", d.Neo4j.Username)
	v.SetDefault("neo4j.password", d.Neo4j.Password)
	v.SetDefault("neo4j.database", d.Neo4j.Database)
	v.SetDefault("neo4j.max_connections", d.Neo4j.MaxConnections)
	v.SetDefault("neo4j.connection_timeout", d.Neo4j.ConnectionTimeout)
	v.SetDefault("neo4j.max_retry_time", d.Neo4j.MaxRetryTime)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("observability.enabled", d.Observability.Enabled)
	v.SetDefault("observability.listen_address", d.Observability.ListenAddress)
	v.SetDefault("observability.health_check_interval", d.Observability.HealthCheckInterval)

	v.SetDefault("archive.path", d.Archive.Path)
	v.SetDefault("archive.busy_timeout", d.Archive.BusyTimeout)
}

// interpolateString replaces ${VAR_NAME} with environment variable values.
// ${VAR_NAME:fallback} uses the fallback when the variable is unset; plain
// ${VAR_NAME} references to unset variables are left in place so the failure
// is visible downstream.
func interpolateString(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		expr := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")

		varName, fallback, hasFallback := strings.Cut(expr, ":")
		if envValue := os.Getenv(varName); envValue != "" {
			return envValue
		}
		if hasFallback {
			return fallback
		}

		return match
	})
}

// applyInterpolation applies ${VAR} interpolation to the string fields that
// may carry secrets or environment-specific values.
func applyInterpolation(cfg *Config, raw map[string]interface{}) {
	if neo4j, ok := raw["neo4j"].(map[string]interface{}); ok {
		if uri, ok := neo4j["uri"].(string); ok {
			cfg.Neo4j.URI = interpolateString(uri)
		}
		if username, ok := neo4j["username"].(string); ok {
			cfg.Neo4j.Username = interpolateString(username)
		}
		if password, ok := neo4j["password"].(string); ok {
			cfg.Neo4j.Password = interpolateString(password)
		}
		if database, ok := neo4j["database"].(string); ok {
			cfg.Neo4j.Database = interpolateString(database)
		}
	}

	if logging, ok := raw["logging"].(map[string]interface{}); ok {
		if level, ok := logging["level"].(string); ok {
			cfg.Logging.Level = interpolateString(level)
		}
		if format, ok := logging["format"].(string); ok {
			cfg.Logging.Format = interpolateString(format)
		}
	}

	if obs, ok := raw["observability"].(map[string]interface{}); ok {
		if addr, ok := obs["listen_address"].(string); ok {
			cfg.Observability.ListenAddress = interpolateString(addr)
		}
	}

	if archive, ok := raw["archive"].(map[string]interface{}); ok {
		if path, ok := archive["path"].(string); ok {
			cfg.Archive.Path = interpolateString(path)
		}
	}
}
