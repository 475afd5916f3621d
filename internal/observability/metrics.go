package observability

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric name constants for write-behind observability. Centralizing the
// names keeps emit and scrape sides consistent and prevents typos.
const (
	// Operation lifecycle metrics
	MetricOperationsSubmitted  = "scribe_operations_submitted_total"
	MetricOperationsSucceeded  = "scribe_operations_succeeded_total"
	MetricOperationsFailed     = "scribe_operations_failed_total"
	MetricOperationsRetried    = "scribe_operations_retried_total"
	MetricOperationsDeadLetter = "scribe_operations_dead_lettered_total"

	// Circuit breaker metrics
	MetricCircuitTransitions = "scribe_circuit_transitions_total"

	// Queue metrics
	MetricQueueDepth = "scribe_queue_depth"
	MetricBatchSize  = "scribe_batch_size"

	// Write latency distribution in seconds
	MetricWriteLatency = "scribe_write_latency_seconds"

	// Component health gauge: 1 healthy, 0 otherwise
	MetricHealthStatus = "scribe_health_status"
)

// MetricsRecorder provides an interface for recording operational metrics.
// This keeps the write-behind pipeline decoupled from a specific metrics
// backend.
//
// Implementations must be safe for concurrent use, as metrics are recorded
// from the hot path and the background executor simultaneously.
type MetricsRecorder interface {
	// RecordCounter increments a counter metric by the given value.
	// Counters are cumulative metrics that only increase.
	RecordCounter(name string, value int64, labels map[string]string)

	// RecordGauge sets a gauge metric to the given value.
	// Gauges represent point-in-time measurements that can go up or down.
	RecordGauge(name string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram metric.
	// Histograms track distributions of values over time.
	RecordHistogram(name string, value float64, labels map[string]string)
}

// NoOpMetricsRecorder is a no-operation implementation of MetricsRecorder.
// It discards all metrics, useful for testing or when metrics are disabled.
type NoOpMetricsRecorder struct{}

// NewNoOpMetricsRecorder creates a new no-op metrics recorder.
// All recording methods are no-ops and safe to call with nil labels.
func NewNoOpMetricsRecorder() *NoOpMetricsRecorder {
	return &NoOpMetricsRecorder{}
}

// RecordCounter is a no-op implementation that discards counter metrics.
func (n *NoOpMetricsRecorder) RecordCounter(name string, value int64, labels map[string]string) {}

// RecordGauge is a no-op implementation that discards gauge metrics.
func (n *NoOpMetricsRecorder) RecordGauge(name string, value float64, labels map[string]string) {}

// RecordHistogram is a no-op implementation that discards histogram metrics.
func (n *NoOpMetricsRecorder) RecordHistogram(name string, value float64, labels map[string]string) {
}

// Ensure NoOpMetricsRecorder implements MetricsRecorder at compile time
var _ MetricsRecorder = (*NoOpMetricsRecorder)(nil)

// PrometheusMetricsRecorder implements MetricsRecorder on a dedicated
// Prometheus registry. Collectors are lazily created on first use and cached
// for subsequent recordings, so only metrics the service actually emits are
// registered.
//
// The label key set of a metric is fixed by its first recording. Later
// recordings with a different key set are dropped, matching Prometheus
// collector semantics.
//
// Thread safety:
//   - Uses sync.RWMutex to protect concurrent access to collector maps
//   - Reader lock for lookups, writer lock for collector creation
type PrometheusMetricsRecorder struct {
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	mu         sync.RWMutex
}

// NewPrometheusMetricsRecorder creates a recorder backed by a fresh registry.
// Expose the registry via Handler on an operator listener for scraping.
func NewPrometheusMetricsRecorder() *PrometheusMetricsRecorder {
	return &PrometheusMetricsRecorder{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Handler returns an http.Handler serving the recorder's registry in the
// Prometheus exposition format.
func (r *PrometheusMetricsRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, for registering additional
// collectors such as process or Go runtime stats.
func (r *PrometheusMetricsRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordCounter increments a counter metric by the given value.
func (r *PrometheusMetricsRecorder) RecordCounter(name string, value int64, labels map[string]string) {
	vec := r.getOrCreateCounter(name, labelKeys(labels))
	if vec == nil {
		return
	}

	counter, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}
	counter.Add(float64(value))
}

// RecordGauge sets a gauge metric to the given value.
func (r *PrometheusMetricsRecorder) RecordGauge(name string, value float64, labels map[string]string) {
	vec := r.getOrCreateGauge(name, labelKeys(labels))
	if vec == nil {
		return
	}

	gauge, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}
	gauge.Set(value)
}

// RecordHistogram records a value in a histogram metric.
func (r *PrometheusMetricsRecorder) RecordHistogram(name string, value float64, labels map[string]string) {
	vec := r.getOrCreateHistogram(name, labelKeys(labels))
	if vec == nil {
		return
	}

	histogram, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}
	histogram.Observe(value)
}

// getOrCreateCounter retrieves or creates a counter collector.
// Thread-safe via read-write mutex.
func (r *PrometheusMetricsRecorder) getOrCreateCounter(name string, keys []string) *prometheus.CounterVec {
	r.mu.RLock()
	vec, exists := r.counters[name]
	r.mu.RUnlock()

	if exists {
		return vec
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check in case another goroutine created it
	if vec, exists := r.counters[name]; exists {
		return vec
	}

	vec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: name,
	}, keys)
	if err := r.registry.Register(vec); err != nil {
		return nil
	}

	r.counters[name] = vec
	return vec
}

// getOrCreateGauge retrieves or creates a gauge collector.
// Thread-safe via read-write mutex.
func (r *PrometheusMetricsRecorder) getOrCreateGauge(name string, keys []string) *prometheus.GaugeVec {
	r.mu.RLock()
	vec, exists := r.gauges[name]
	r.mu.RUnlock()

	if exists {
		return vec
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if vec, exists := r.gauges[name]; exists {
		return vec
	}

	vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: name,
	}, keys)
	if err := r.registry.Register(vec); err != nil {
		return nil
	}

	r.gauges[name] = vec
	return vec
}

// getOrCreateHistogram retrieves or creates a histogram collector.
// Thread-safe via read-write mutex.
func (r *PrometheusMetricsRecorder) getOrCreateHistogram(name string, keys []string) *prometheus.HistogramVec {
	r.mu.RLock()
	vec, exists := r.histograms[name]
	r.mu.RUnlock()

	if exists {
		return vec
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if vec, exists := r.histograms[name]; exists {
		return vec
	}

	vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    name,
		Buckets: prometheus.DefBuckets,
	}, keys)
	if err := r.registry.Register(vec); err != nil {
		return nil
	}

	r.histograms[name] = vec
	return vec
}

// labelKeys extracts the sorted key set of a label map.
// Returns an empty slice if labels is nil.
func labelKeys(labels map[string]string) []string {
	if len(labels) == 0 {
		return []string{}
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Ensure PrometheusMetricsRecorder implements MetricsRecorder at compile time
var _ MetricsRecorder = (*PrometheusMetricsRecorder)(nil)
