package provenance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Lego4005/scribe/internal/graph"
	"github.com/Lego4005/scribe/internal/observability"
	"github.com/Lego4005/scribe/internal/types"
)

// Service is the write-behind facade. Producers submit idempotent graph
// mutations and get an operation id back immediately; a background loop
// drains the pending queue and persists through the graph client.
//
// All methods are safe for concurrent use.
type Service struct {
	client graph.GraphClient

	cfgMu sync.RWMutex
	cfg   Config

	queue     *pendingQueue
	store     *operationStore
	breaker   *CircuitBreaker
	scheduler *RetryScheduler
	collector *introspectionCollector
	stats     *performanceTracker
	archive   *Archive

	logger  *observability.TracedLogger
	metrics observability.MetricsRecorder
	jitter  JitterSource
	sleeper func(ctx context.Context, d time.Duration) error

	lifecycle sync.Mutex
	started   bool
	stopped   bool
	stopCh    chan struct{}
	done      chan struct{}
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithLogger sets the structured logger. Without it the service is silent.
func WithLogger(logger *observability.TracedLogger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger.WithComponent("provenance")
		}
	}
}

// WithMetricsRecorder sets the metrics backend. Defaults to a no-op recorder.
func WithMetricsRecorder(metrics observability.MetricsRecorder) Option {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithArchive attaches a sqlite dead-letter archive. Evicted operations are
// inserted so operator evidence survives restarts. Nil leaves archiving off.
func WithArchive(archive *Archive) Option {
	return func(s *Service) {
		s.archive = archive
	}
}

// WithJitterSource replaces the retry jitter source, letting tests pin
// backoff delays.
func WithJitterSource(jitter JitterSource) Option {
	return func(s *Service) {
		s.jitter = jitter
	}
}

// WithSleeper replaces the retry backoff wait, letting tests skip real
// sleeps. The sleeper receives the execution context and the computed delay.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) {
		s.sleeper = sleep
	}
}

// New builds a Service from a validated config and an injected graph client.
// Nothing is global; the caller owns the client's lifecycle.
func New(cfg Config, client graph.GraphClient, opts ...Option) (*Service, error) {
	if client == nil {
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED, "graph client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		client:  client,
		cfg:     cfg,
		logger:  observability.NewTracedLogger(slog.DiscardHandler, "scribe", "provenance"),
		metrics: observability.NewNoOpMetricsRecorder(),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.queue = newPendingQueue(cfg.MaxPendingOperations)
	s.store = newOperationStore(cfg.DeadLetterThreshold)
	s.collector = newIntrospectionCollector(cfg.IntrospectionLimit, cfg.EnableIntrospection)
	s.stats = newPerformanceTracker()
	s.scheduler = NewRetryScheduler(s.jitter)
	s.breaker = NewCircuitBreaker(BreakerSettings{
		Enabled:          cfg.EnableCircuitBreaker,
		FailureThreshold: cfg.FailureThreshold,
		RecoveryTimeout:  cfg.RecoveryTimeout,
		HalfOpenMaxCalls: cfg.HalfOpenMaxCalls,
		OnStateChange: func(from, to BreakerState) {
			s.metrics.RecordCounter(observability.MetricCircuitTransitions, 1,
				map[string]string{"from": string(from), "to": string(to)})
			s.logger.Warn(context.Background(), "Circuit breaker state changed",
				"from", string(from), "to", string(to))
		},
	})

	return s, nil
}

// Start launches the background drain loop. The context bounds the loop's
// lifetime alongside Shutdown.
func (s *Service) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.stopped {
		return types.NewError(types.SERVICE_STOPPED, "service has been shut down")
	}
	if s.started {
		return types.NewError(types.OPERATION_INVALID, "service already started")
	}
	s.started = true

	go s.run(ctx)

	cfg := s.config()
	s.logger.Info(ctx, "Write-behind service started",
		"interval", cfg.BackgroundProcessingInterval.String(),
		"max_batch_size", cfg.MaxBatchSize,
		"worker_pool_size", cfg.WorkerPoolSize,
		"archive_enabled", s.archive != nil)
	return nil
}

// Shutdown stops accepting submissions, signals the drain loop, and waits
// for it to exit or the context to expire. Operations mid-retry when the
// signal lands are left non-terminal. Safe to call more than once.
func (s *Service) Shutdown(ctx context.Context) error {
	s.lifecycle.Lock()
	if s.stopped {
		s.lifecycle.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	s.lifecycle.Unlock()

	s.queue.Close()
	close(s.stopCh)

	if !started {
		return nil
	}

	select {
	case <-s.done:
		s.logger.Info(ctx, "Write-behind service stopped",
			"pending", s.queue.Len())
		return nil
	case <-ctx.Done():
		return types.WrapError(types.SERVICE_STOPPED,
			"background loop did not stop before the deadline", ctx.Err())
	}
}

// CreateNodeIdempotent enqueues an idempotent node upsert and returns its
// operation id. The call does no store I/O: it validates, renders the query,
// and appends to the pending queue, so it returns well inside
// HotPathTimeout regardless of store health. Errors surface only for
// malformed specs, a full queue, or a stopped service.
func (s *Service) CreateNodeIdempotent(ctx context.Context, spec NodeSpec, runID string, priority Priority) (types.ID, error) {
	cfg := s.config()

	query, params, err := buildNodeUpsert(spec, runID)
	if err != nil {
		return "", err
	}

	op := &Operation{
		ID:         types.NewID(),
		Kind:       OperationKindNode,
		Node:       &spec,
		Query:      query,
		Parameters: params,
		MaxRetries: cfg.DefaultMaxRetries,
		Strategy:   cfg.Strategy,
		BaseDelay:  cfg.BaseDelay,
		MaxDelay:   cfg.MaxDelay,
		Priority:   priority,
		RunID:      runID,
		State:      OperationStatePending,
		CreatedAt:  time.Now(),
	}
	return s.submit(ctx, op)
}

// CreateRelationshipIdempotent enqueues an idempotent relationship upsert
// between two existing nodes. A merge whose endpoints are missing is not an
// error: it completes as AlreadyExists having changed nothing.
func (s *Service) CreateRelationshipIdempotent(ctx context.Context, spec RelationshipSpec, runID string, priority Priority) (types.ID, error) {
	cfg := s.config()

	query, params, err := buildRelationshipUpsert(spec, runID)
	if err != nil {
		return "", err
	}

	op := &Operation{
		ID:           types.NewID(),
		Kind:         OperationKindRelationship,
		Relationship: &spec,
		Query:        query,
		Parameters:   params,
		MaxRetries:   cfg.DefaultMaxRetries,
		Strategy:     cfg.Strategy,
		BaseDelay:    cfg.BaseDelay,
		MaxDelay:     cfg.MaxDelay,
		Priority:     priority,
		RunID:        runID,
		State:        OperationStatePending,
		CreatedAt:    time.Now(),
	}
	return s.submit(ctx, op)
}

// CreateBatchOperation enqueues a list of statements executed as one write
// transaction. Batches get a higher retry allowance than single statements;
// every statement must itself be idempotent for the retries to be safe.
func (s *Service) CreateBatchOperation(ctx context.Context, statements []graph.Statement, runID string, priority Priority) (types.ID, error) {
	cfg := s.config()

	op := &Operation{
		ID:         types.NewID(),
		Kind:       OperationKindBatch,
		Batch:      statements,
		MaxRetries: cfg.BatchMaxRetries,
		Strategy:   cfg.Strategy,
		BaseDelay:  cfg.BaseDelay,
		MaxDelay:   cfg.MaxDelay,
		Priority:   priority,
		RunID:      runID,
		State:      OperationStatePending,
		CreatedAt:  time.Now(),
	}
	return s.submit(ctx, op)
}

// submit validates, tracks, and enqueues one operation. Track precedes Push
// so a popped operation is always resolvable by id; a rejected push untracks
// to avoid orphans.
func (s *Service) submit(ctx context.Context, op *Operation) (types.ID, error) {
	if err := op.Validate(); err != nil {
		return "", err
	}
	if err := s.store.Track(op); err != nil {
		return "", err
	}
	if err := s.queue.Push(op); err != nil {
		s.store.Untrack(op.ID)
		return "", err
	}

	s.stats.RecordSubmitted()
	s.metrics.RecordCounter(observability.MetricOperationsSubmitted, 1, map[string]string{
		"kind":     string(op.Kind),
		"priority": op.Priority.String(),
	})
	s.logger.Debug(ctx, "Operation submitted",
		"operation_id", op.ID.String(),
		"kind", string(op.Kind),
		"priority", op.Priority.String(),
		"run_id", op.RunID)
	return op.ID, nil
}

// OperationStatus returns a point-in-time snapshot of one operation, in any
// state including dead-letter.
func (s *Service) OperationStatus(id types.ID) (OperationStatus, error) {
	return s.store.Get(id)
}

// IntrospectionData returns execution records, newest first. A zero
// operation id matches all operations; limit <= 0 or beyond the window
// returns the whole window.
func (s *Service) IntrospectionData(id types.ID, limit int) []Introspection {
	return s.collector.Query(id, limit)
}

// PerformanceMetrics returns lifecycle counters, latency statistics over
// completed operations, and current queue depths.
func (s *Service) PerformanceMetrics() PerformanceMetrics {
	m := s.stats.Snapshot()
	m.PendingDepth = s.queue.Len()
	_, _, deadLetter := s.store.Counts()
	m.DeadLetterDepth = deadLetter
	return m
}

// HealthStatus aggregates four sub-checks into one verdict: drain-loop
// liveness, circuit breaker state, pending queue depth, and the error rate.
// A dead loop or an open breaker is unhealthy (nothing is being persisted);
// a depth or error-rate breach alone is degraded.
func (s *Service) HealthStatus() types.HealthStatus {
	cfg := s.config()

	lastCycleAt, startedAt := s.stats.Liveness()
	ref := lastCycleAt
	if ref.IsZero() {
		ref = startedAt
	}
	cycleAge := time.Since(ref)
	grace := time.Duration(livenessGraceMultiple) * cfg.BackgroundProcessingInterval
	loopAlive := cycleAge <= grace

	breakerState := s.breaker.State()
	breakerOK := breakerState != BreakerOpen

	pending := s.queue.Len()
	depthLimit := cfg.PendingDepthMultiple * cfg.MaxBatchSize
	depthOK := pending < depthLimit

	errorRate := s.stats.ErrorRate()
	errorOK := errorRate < errorRateThreshold

	var status types.HealthStatus
	switch {
	case !loopAlive:
		status = types.Unhealthy(fmt.Sprintf("background loop stalled; last cycle %s ago", cycleAge.Round(time.Millisecond)))
	case !breakerOK:
		status = types.Unhealthy("circuit breaker open; writes suspended")
	case !depthOK && !errorOK:
		status = types.Degraded(fmt.Sprintf("pending backlog %d and error rate %.1f%%", pending, errorRate*100))
	case !depthOK:
		status = types.Degraded(fmt.Sprintf("pending backlog %d exceeds %d", pending, depthLimit))
	case !errorOK:
		status = types.Degraded(fmt.Sprintf("error rate %.1f%% exceeds %.0f%%", errorRate*100, errorRateThreshold*100))
	default:
		status = types.Healthy("write-behind pipeline healthy")
	}

	return status.
		WithDetail("loop", fmt.Sprintf("alive=%t last_cycle_age=%s", loopAlive, cycleAge.Round(time.Millisecond))).
		WithDetail("breaker", string(breakerState)).
		WithDetail("queue", fmt.Sprintf("pending=%d limit=%d", pending, depthLimit)).
		WithDetail("errors", fmt.Sprintf("rate=%.3f", errorRate))
}

// Health implements observability.HealthChecker.
func (s *Service) Health(ctx context.Context) types.HealthStatus {
	return s.HealthStatus()
}

// UpdateConfig applies recognized runtime options atomically. An unknown
// key or a value that fails validation rejects the whole update; nothing is
// applied. Changes take effect from the next drain cycle.
func (s *Service) UpdateConfig(updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}

	s.cfgMu.Lock()
	next, err := s.cfg.withUpdates(updates)
	if err != nil {
		s.cfgMu.Unlock()
		return err
	}
	s.cfg = next
	s.cfgMu.Unlock()

	// Components holding their own copy of a knob hear about it here.
	s.queue.SetCapacity(next.MaxPendingOperations)
	s.store.SetDeadLetterThreshold(next.DeadLetterThreshold)
	s.breaker.SetEnabled(next.EnableCircuitBreaker)
	s.collector.SetLimit(next.IntrospectionLimit)
	s.collector.SetEnabled(next.EnableIntrospection)

	s.logger.Info(context.Background(), "Runtime configuration updated",
		"keys", updateKeys(updates))
	return nil
}

// ClearDeadLetterQueue discards all dead-letter operations and returns how
// many were removed. Cleared ids stop resolving through OperationStatus.
// The sqlite archive, when enabled, keeps its rows.
func (s *Service) ClearDeadLetterQueue() int {
	n := s.store.ClearDeadLetter()
	if n > 0 {
		s.logger.Info(context.Background(), "Dead-letter queue cleared", "removed", n)
	}
	return n
}

// DeadLetterOperations lists the dead-letter queue in eviction order,
// oldest first.
func (s *Service) DeadLetterOperations() []OperationStatus {
	return s.store.DeadLetterSnapshot()
}

// RequeueDeadLetter moves a dead-letter operation back to the pending queue
// under its original id, with attempts and outcome reset. The original
// submission time is kept so TotalTime reflects the full wall-clock life.
func (s *Service) RequeueDeadLetter(id types.ID) error {
	op, err := s.store.TakeDeadLetter(id)
	if err != nil {
		return err
	}

	s.store.ResetForRequeue(op)
	if err := s.queue.Push(op); err != nil {
		s.store.RestoreDeadLetter(op)
		return err
	}

	s.logger.Info(context.Background(), "Dead-letter operation requeued",
		"operation_id", op.ID.String(),
		"kind", string(op.Kind))
	return nil
}

// Flush runs drain cycles until the pending queue is empty or the context
// expires. Cycles pop atomically, so flushing alongside the background loop
// is safe; each operation executes exactly once.
func (s *Service) Flush(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.queue.Len() == 0 {
			return nil
		}
		s.runCycle(ctx)
	}
}

// config returns a copy of the current runtime configuration.
func (s *Service) config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

func updateKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
