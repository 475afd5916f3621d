// Package provenance implements the idempotent write-behind persistence
// service for provenance data (experts, decisions, games, and their
// relationships).
//
// Producers submit operations on a hot path that never touches the backing
// store: submission renders an idempotent upsert, assigns an operation ID,
// and appends to a bounded priority queue. A single background executor
// drains the queue on a fixed cadence and performs the actual graph writes,
// classifying every attempt and retrying transient failures in place with
// jittered backoff. A circuit breaker keeps a failing store from being
// hammered, and operations that exhaust their retries flow through a failed
// store into a dead-letter queue (optionally mirrored into a local SQLite
// archive for operator forensics).
//
// # Architecture
//
//   - Service: public facade; submission, status, metrics, health, config
//   - pendingQueue: bounded, priority-banded FIFO of unprocessed operations
//   - operationStore: tracks every operation by ID through its lifecycle
//   - CircuitBreaker: Closed/Open/HalfOpen gate in front of the store
//   - RetryScheduler: exponential/linear/fixed/fibonacci backoff with jitter
//   - introspectionCollector: rolling window of per-attempt execution records
//   - performanceTracker: counters and latency percentiles
//   - Archive: optional SQLite dead-letter archive
//
// # Guarantees
//
// Submission is non-blocking: it returns within the configured hot-path
// timeout regardless of store latency, because no store I/O happens on that
// path. All writes are idempotent MERGE upserts, so at-least-once execution
// under retries converges to exactly-once effects. Operations are processed
// in priority order (high before normal before low) and FIFO within a
// priority band; no global ordering across bands is guaranteed.
//
// # Usage
//
//	client, _ := graph.NewNeo4jClient(graph.DefaultConfig())
//	svc, err := provenance.New(provenance.DefaultServiceConfig(), client)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Start(ctx)
//	defer svc.Shutdown(ctx)
//
//	id, err := svc.CreateNodeIdempotent(ctx, provenance.NodeSpec{
//	    Type:       "Expert",
//	    ID:         "expert-7",
//	    Properties: map[string]any{"name": "The Analyst"},
//	}, "run-42", provenance.PriorityHigh)
//
// The returned ID can be polled through OperationStatus; terminal outcomes
// (success, permanent failure, retry exhaustion) surface only through status,
// metrics, and health. Producers are never blocked by persistence failures.
package provenance
