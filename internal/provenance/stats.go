package provenance

import (
	"math"
	"sort"
	"sync"
	"time"
)

const (
	// errorRateThreshold is the terminal-failure fraction at which the
	// composite health check reports the error-rate sub-check unhealthy.
	errorRateThreshold = 0.10

	// livenessGraceMultiple: the background loop counts as live while its
	// last cycle finished within this multiple of the processing interval.
	livenessGraceMultiple = 3

	// latencySampleWindow bounds the completed-operation durations kept for
	// percentile computation. Oldest samples fall off first.
	latencySampleWindow = 4096
)

// PerformanceMetrics is a snapshot of the service counters and the latency
// digest over completed operations.
type PerformanceMetrics struct {
	TotalOperations          uint64 `json:"total_operations"`
	SuccessfulOperations     uint64 `json:"successful_operations"`
	FailedOperations         uint64 `json:"failed_operations"`
	RetriedOperations        uint64 `json:"retried_operations"`
	CircuitTrippedOperations uint64 `json:"circuit_tripped_operations"`
	DeadLetteredOperations   uint64 `json:"dead_lettered_operations"`

	PendingDepth    int `json:"pending_depth"`
	DeadLetterDepth int `json:"dead_letter_depth"`

	MeanLatency time.Duration `json:"mean_latency"`
	P50Latency  time.Duration `json:"p50_latency"`
	P95Latency  time.Duration `json:"p95_latency"`
	P99Latency  time.Duration `json:"p99_latency"`
	MinLatency  time.Duration `json:"min_latency"`
	MaxLatency  time.Duration `json:"max_latency"`
}

// performanceTracker accumulates the monotonic counters and the latency
// sample window. Latency samples come from completed operations' TotalTime;
// failures contribute to counters only.
type performanceTracker struct {
	mu sync.Mutex

	total          uint64
	successful     uint64
	failed         uint64
	retried        uint64
	circuitTripped uint64
	deadLettered   uint64

	durations []time.Duration

	startedAt   time.Time
	lastCycleAt time.Time
}

func newPerformanceTracker() *performanceTracker {
	return &performanceTracker{startedAt: time.Now()}
}

func (t *performanceTracker) RecordSubmitted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total++
}

func (t *performanceTracker) RecordSuccess(totalTime time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.successful++
	t.durations = append(t.durations, totalTime)
	if excess := len(t.durations) - latencySampleWindow; excess > 0 {
		t.durations = t.durations[excess:]
	}
}

func (t *performanceTracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
}

func (t *performanceTracker) RecordRetry() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retried++
}

// RecordCircuitTripped counts an operation failed terminally because the
// breaker disallowed it. The failure counter moves too: a skipped write is
// still an unpersisted operation.
func (t *performanceTracker) RecordCircuitTripped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.circuitTripped++
	t.failed++
}

func (t *performanceTracker) RecordDeadLettered() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deadLettered++
}

// RecordCycle marks the end of a drain cycle for liveness tracking.
func (t *performanceTracker) RecordCycle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastCycleAt = time.Now()
}

// ErrorRate returns the terminally-failed fraction of finished operations.
// Zero while nothing has finished.
func (t *performanceTracker) ErrorRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	finished := t.successful + t.failed
	if finished == 0 {
		return 0
	}
	return float64(t.failed) / float64(finished)
}

// Liveness returns when the loop last completed a cycle and when the
// tracker was created, for the loop-liveness health sub-check.
func (t *performanceTracker) Liveness() (lastCycleAt, startedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastCycleAt, t.startedAt
}

// Snapshot returns the counters and latency digest. Queue depths are filled
// in by the service, which owns the queues.
func (t *performanceTracker) Snapshot() PerformanceMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := PerformanceMetrics{
		TotalOperations:          t.total,
		SuccessfulOperations:     t.successful,
		FailedOperations:         t.failed,
		RetriedOperations:        t.retried,
		CircuitTrippedOperations: t.circuitTripped,
		DeadLetteredOperations:   t.deadLettered,
	}

	if len(t.durations) == 0 {
		return m
	}

	sorted := make([]time.Duration, len(t.durations))
	copy(sorted, t.durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	m.MeanLatency = sum / time.Duration(len(sorted))
	m.P50Latency = percentile(sorted, 50)
	m.P95Latency = percentile(sorted, 95)
	m.P99Latency = percentile(sorted, 99)
	m.MinLatency = sorted[0]
	m.MaxLatency = sorted[len(sorted)-1]
	return m
}

// percentile computes the nearest-rank percentile of a sorted sample.
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(q / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
