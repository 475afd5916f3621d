// Package observability provides the metrics, health, and logging
// infrastructure for the scribe service.
//
// # Architecture
//
// The package is organized into three components:
//
//   - Metrics: A MetricsRecorder interface with Prometheus and no-op
//     implementations; counters, gauges, and histograms
//   - Health: Component health monitoring with state change detection
//     and periodic checks
//   - Logging: Structured slog logging with automatic trace correlation
//     and sensitive-field redaction
//
// # Metrics
//
// Components record metrics through the MetricsRecorder interface so tests
// can run against the no-op recorder while production uses Prometheus:
//
//	metrics := observability.NewPrometheusMetricsRecorder()
//	metrics.RecordCounter("scribe_operations_submitted_total", 1,
//	    map[string]string{"priority": "high"})
//
// The Prometheus recorder registers collectors lazily on first use and
// exposes them over HTTP via Handler().
//
// # Health Monitoring
//
// The HealthMonitor aggregates per-component health into an overall verdict.
// Components implement HealthChecker and register by name:
//
//	monitor := observability.NewHealthMonitor(metrics, logger)
//	monitor.Register("provenance", svc)
//	monitor.Register("neo4j", client)
//	status := monitor.Overall(ctx)
//
// State transitions (healthy -> degraded, degraded -> unhealthy, and back)
// are logged and exported as gauge metrics.
//
// # Logging
//
// TracedLogger wraps slog and stamps every entry with the service and
// component names. When an OpenTelemetry span is active in the context,
// entries also carry trace_id and span_id for correlation. Fields that
// commonly carry credentials (password, token, api_key) are redacted at
// info level and above.
package observability
