package observability

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lego4005/scribe/internal/types"
)

// stubHealthChecker is a test implementation of HealthChecker.
type stubHealthChecker struct {
	mu         sync.RWMutex
	status     types.HealthStatus
	checkCount int
}

func newStubHealthChecker(status types.HealthStatus) *stubHealthChecker {
	return &stubHealthChecker{status: status}
}

func (s *stubHealthChecker) Health(ctx context.Context) types.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkCount++
	return s.status
}

func (s *stubHealthChecker) SetHealth(status types.HealthStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *stubHealthChecker) CheckCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkCount
}

// capturedGauge records one RecordGauge call.
type capturedGauge struct {
	Name   string
	Value  float64
	Labels map[string]string
}

// captureRecorder captures all metrics for assertions.
type captureRecorder struct {
	mu     sync.Mutex
	gauges []capturedGauge
}

func (c *captureRecorder) RecordCounter(name string, value int64, labels map[string]string) {}

func (c *captureRecorder) RecordGauge(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	labelsCopy := make(map[string]string, len(labels))
	for k, v := range labels {
		labelsCopy[k] = v
	}
	c.gauges = append(c.gauges, capturedGauge{Name: name, Value: value, Labels: labelsCopy})
}

func (c *captureRecorder) RecordHistogram(name string, value float64, labels map[string]string) {}

func (c *captureRecorder) GaugesByName(name string) []capturedGauge {
	c.mu.Lock()
	defer c.mu.Unlock()
	var result []capturedGauge
	for _, g := range c.gauges {
		if g.Name == name {
			result = append(result, g)
		}
	}
	return result
}

var _ MetricsRecorder = (*captureRecorder)(nil)

func newTestLogger() *TracedLogger {
	handler := NewTextHandler(io.Discard, slog.LevelDebug)
	return NewTracedLogger(handler, "scribe-test", "health")
}

func TestHealthMonitor_RegisterAndCheckAll(t *testing.T) {
	metrics := &captureRecorder{}
	monitor := NewHealthMonitor(metrics, newTestLogger())

	graphChecker := newStubHealthChecker(types.Healthy("graph connected"))
	queueChecker := newStubHealthChecker(types.Healthy("queue drained"))
	archiveChecker := newStubHealthChecker(types.Degraded("slow disk"))

	monitor.Register("graph", graphChecker)
	monitor.Register("queue", queueChecker)
	monitor.Register("archive", archiveChecker)

	ctx := context.Background()
	results := monitor.CheckAll(ctx)

	assert.Len(t, results, 3)

	assert.True(t, results["graph"].IsHealthy())
	assert.Equal(t, "graph connected", results["graph"].Message)

	assert.True(t, results["queue"].IsHealthy())
	assert.True(t, results["archive"].IsDegraded())

	assert.Equal(t, 1, graphChecker.CheckCount())
	assert.Equal(t, 1, queueChecker.CheckCount())
	assert.Equal(t, 1, archiveChecker.CheckCount())

	gauges := metrics.GaugesByName(MetricHealthStatus)
	assert.Len(t, gauges, 3)
	for _, g := range gauges {
		switch g.Labels["component"] {
		case "graph", "queue":
			assert.Equal(t, 1.0, g.Value)
		case "archive":
			assert.Equal(t, 0.0, g.Value)
			assert.Equal(t, "degraded", g.Labels["state"])
		}
	}
}

func TestHealthMonitor_Check(t *testing.T) {
	metrics := &captureRecorder{}
	monitor := NewHealthMonitor(metrics, newTestLogger())

	checker := newStubHealthChecker(types.Healthy("graph connected"))
	monitor.Register("graph", checker)

	ctx := context.Background()

	status, err := monitor.Check(ctx, "graph")
	require.NoError(t, err)
	assert.True(t, status.IsHealthy())
	assert.Equal(t, "graph connected", status.Message)

	_, err = monitor.Check(ctx, "nonexistent")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestHealthMonitor_Unregister(t *testing.T) {
	metrics := &captureRecorder{}
	monitor := NewHealthMonitor(metrics, newTestLogger())

	monitor.Register("graph", newStubHealthChecker(types.Healthy("ok")))
	monitor.Register("queue", newStubHealthChecker(types.Healthy("ok")))

	ctx := context.Background()
	assert.Len(t, monitor.CheckAll(ctx), 2)

	monitor.Unregister("queue")

	results := monitor.CheckAll(ctx)
	assert.Len(t, results, 1)
	assert.Contains(t, results, "graph")
	assert.NotContains(t, results, "queue")
}

func TestHealthMonitor_Overall(t *testing.T) {
	ctx := context.Background()

	t.Run("no components", func(t *testing.T) {
		monitor := NewHealthMonitor(&captureRecorder{}, newTestLogger())
		assert.True(t, monitor.Overall(ctx).IsHealthy())
	})

	t.Run("all healthy", func(t *testing.T) {
		monitor := NewHealthMonitor(&captureRecorder{}, newTestLogger())
		monitor.Register("graph", newStubHealthChecker(types.Healthy("ok")))
		monitor.Register("queue", newStubHealthChecker(types.Healthy("ok")))

		status := monitor.Overall(ctx)
		assert.True(t, status.IsHealthy())
		assert.Contains(t, status.Message, "2 components healthy")
	})

	t.Run("degraded wins over healthy", func(t *testing.T) {
		monitor := NewHealthMonitor(&captureRecorder{}, newTestLogger())
		monitor.Register("graph", newStubHealthChecker(types.Healthy("ok")))
		monitor.Register("archive", newStubHealthChecker(types.Degraded("slow disk")))

		status := monitor.Overall(ctx)
		assert.True(t, status.IsDegraded())
		assert.Contains(t, status.Message, "archive: slow disk")
	})

	t.Run("unhealthy wins over degraded", func(t *testing.T) {
		monitor := NewHealthMonitor(&captureRecorder{}, newTestLogger())
		monitor.Register("graph", newStubHealthChecker(types.Unhealthy("connection lost")))
		monitor.Register("archive", newStubHealthChecker(types.Degraded("slow disk")))

		status := monitor.Overall(ctx)
		assert.True(t, status.IsUnhealthy())
		assert.Contains(t, status.Message, "graph: connection lost")
		assert.Contains(t, status.Message, "archive: slow disk")
	})
}

func TestHealthMonitor_StartPeriodicCheck(t *testing.T) {
	metrics := &captureRecorder{}
	monitor := NewHealthMonitor(metrics, newTestLogger())

	checker := newStubHealthChecker(types.Healthy("ok"))
	monitor.Register("graph", checker)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go monitor.StartPeriodicCheck(ctx, 50*time.Millisecond)

	time.Sleep(180 * time.Millisecond)

	checkCount := checker.CheckCount()
	assert.GreaterOrEqual(t, checkCount, 2, "should perform multiple periodic checks")
	assert.LessOrEqual(t, checkCount, 5, "should not over-check")
}

func TestHealthMonitor_StateChangeLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := NewJSONHandler(buf, slog.LevelDebug)
	logger := NewTracedLogger(handler, "scribe-test", "health")
	monitor := NewHealthMonitor(&captureRecorder{}, logger)

	checker := newStubHealthChecker(types.Healthy("ok"))
	monitor.Register("graph", checker)

	ctx := context.Background()

	// First check: unhealthy (initial) -> healthy is a recovery.
	monitor.CheckAll(ctx)
	assert.Contains(t, buf.String(), "Component health recovered")

	buf.Reset()
	checker.SetHealth(types.Unhealthy("connection lost"))
	monitor.CheckAll(ctx)
	assert.Contains(t, buf.String(), "Component health degraded")
	assert.Contains(t, buf.String(), "connection lost")

	buf.Reset()
	checker.SetHealth(types.Unhealthy("still down"))
	monitor.CheckAll(ctx)
	assert.NotContains(t, buf.String(), "Component health", "no log without a state change")
}
