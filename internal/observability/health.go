package observability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Lego4005/scribe/internal/types"
)

// HealthChecker defines the interface that components must implement to be
// monitored. Components report their current health status when queried.
type HealthChecker interface {
	// Health returns the current health status of the component.
	// The context can be used for timeout control and cancellation.
	Health(ctx context.Context) types.HealthStatus
}

// componentState tracks the current and previous health status of a component
// to detect state transitions (healthy -> degraded, degraded -> healthy, etc.)
type componentState struct {
	checker       HealthChecker
	lastStatus    types.HealthStatus
	lastCheckedAt time.Time
}

// HealthMonitor coordinates health checking across system components.
// It tracks component health, emits gauge metrics, logs state changes, and
// supports both on-demand and periodic checks.
//
// The monitor is safe for concurrent use and supports dynamic registration.
type HealthMonitor struct {
	metrics    MetricsRecorder
	logger     *TracedLogger
	components map[string]*componentState
	mu         sync.RWMutex
}

// NewHealthMonitor creates a new health monitor with the specified dependencies.
func NewHealthMonitor(metrics MetricsRecorder, logger *TracedLogger) *HealthMonitor {
	return &HealthMonitor{
		metrics:    metrics,
		logger:     logger,
		components: make(map[string]*componentState),
	}
}

// Register adds a component to health monitoring. The component is included
// in all future checks. Registering an existing name replaces the checker.
func (h *HealthMonitor) Register(name string, checker HealthChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.components[name] = &componentState{
		checker: checker,
		// Initialize with unhealthy status to detect the first transition to healthy
		lastStatus:    types.NewHealthStatus(types.HealthStateUnhealthy, "not yet checked"),
		lastCheckedAt: time.Time{},
	}
}

// Unregister removes a component from health monitoring.
func (h *HealthMonitor) Unregister(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.components, name)
}

// Check performs a health check on a specific component. Returns an error if
// the component is not registered.
func (h *HealthMonitor) Check(ctx context.Context, name string) (types.HealthStatus, error) {
	h.mu.RLock()
	state, exists := h.components[name]
	h.mu.RUnlock()

	if !exists {
		return types.HealthStatus{}, fmt.Errorf("component %q is not registered", name)
	}

	status := state.checker.Health(ctx)
	h.updateComponentState(ctx, name, state, status)

	return status, nil
}

// CheckAll performs health checks on all registered components and returns a
// map of component names to their status.
func (h *HealthMonitor) CheckAll(ctx context.Context) map[string]types.HealthStatus {
	h.mu.RLock()
	// Snapshot components to avoid holding the lock during checks
	snapshot := make(map[string]*componentState, len(h.components))
	for name, state := range h.components {
		snapshot[name] = state
	}
	h.mu.RUnlock()

	results := make(map[string]types.HealthStatus, len(snapshot))
	for name, state := range snapshot {
		status := state.checker.Health(ctx)
		results[name] = status

		h.updateComponentState(ctx, name, state, status)
	}

	return results
}

// Overall checks all components and reduces the results to a single verdict:
// the worst state wins, and the message names every component that is not
// healthy. A monitor with no components reports healthy.
func (h *HealthMonitor) Overall(ctx context.Context) types.HealthStatus {
	results := h.CheckAll(ctx)

	worst := types.HealthStateHealthy
	var ailing []string
	for name, status := range results {
		if status.IsHealthy() {
			continue
		}
		ailing = append(ailing, fmt.Sprintf("%s: %s", name, status.Message))
		if status.IsUnhealthy() {
			worst = types.HealthStateUnhealthy
		} else if worst != types.HealthStateUnhealthy {
			worst = types.HealthStateDegraded
		}
	}

	if worst == types.HealthStateHealthy {
		return types.Healthy(fmt.Sprintf("%d components healthy", len(results)))
	}

	sort.Strings(ailing)
	return types.NewHealthStatus(worst, strings.Join(ailing, "; "))
}

// StartPeriodicCheck runs CheckAll at the given interval until the context is
// cancelled. Run it in a goroutine:
//
//	go monitor.StartPeriodicCheck(ctx, 30*time.Second)
func (h *HealthMonitor) StartPeriodicCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.CheckAll(ctx)
		}
	}
}

// updateComponentState updates the component's state and emits metrics and
// logs when the health state changed.
func (h *HealthMonitor) updateComponentState(ctx context.Context, name string, state *componentState, newStatus types.HealthStatus) {
	h.mu.Lock()
	previousState := state.lastStatus.State
	currentState := newStatus.State
	stateChanged := previousState != currentState

	state.lastStatus = newStatus
	state.lastCheckedAt = time.Now()
	h.mu.Unlock()

	// Gauge value: 1 for healthy, 0 for degraded/unhealthy
	var healthValue float64
	if newStatus.IsHealthy() {
		healthValue = 1.0
	}

	h.metrics.RecordGauge(MetricHealthStatus, healthValue, map[string]string{
		"component": name,
		"state":     string(currentState),
	})

	if stateChanged {
		h.logStateChange(ctx, name, previousState, currentState, newStatus.Message)
	}
}

// logStateChange logs health state transitions with appropriate severity.
//
// Degradation events (healthy -> degraded/unhealthy) are logged at ERROR level.
// Recovery events (degraded/unhealthy -> healthy) are logged at INFO level.
// Other transitions are logged at WARN level.
func (h *HealthMonitor) logStateChange(ctx context.Context, component string, previousState, currentState types.HealthState, message string) {
	logArgs := []any{
		"component", component,
		"previous_state", string(previousState),
		"current_state", string(currentState),
		"message", message,
	}

	if previousState == types.HealthStateHealthy && currentState != types.HealthStateHealthy {
		h.logger.Error(ctx, "Component health degraded", logArgs...)
		return
	}

	if previousState != types.HealthStateHealthy && currentState == types.HealthStateHealthy {
		h.logger.Info(ctx, "Component health recovered", logArgs...)
		return
	}

	h.logger.Warn(ctx, "Component health state changed", logArgs...)
}
