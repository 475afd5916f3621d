package provenance

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lego4005/scribe/internal/graph"
	"github.com/Lego4005/scribe/internal/observability"
	"github.com/Lego4005/scribe/internal/types"
)

// run is the background drain loop and the only writer of terminal operation
// state. It exits when Shutdown signals stopCh or the start context is
// cancelled.
func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	interval := s.config().BackgroundProcessingInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)

			// Pick up a retuned cadence on the next tick.
			if next := s.config().BackgroundProcessingInterval; next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// runCycle pops one batch off the pending queue and drives every popped
// operation to a terminal state. Returns the number of operations drained.
func (s *Service) runCycle(ctx context.Context) int {
	cfg := s.config()
	s.stats.RecordCycle()

	batch := s.queue.Pop(cfg.MaxBatchSize)
	if len(batch) == 0 {
		s.metrics.RecordGauge(observability.MetricQueueDepth, float64(s.queue.Len()), nil)
		return 0
	}

	s.metrics.RecordHistogram(observability.MetricBatchSize, float64(len(batch)), nil)

	// Pop already orders by priority band, FIFO within a band. With a single
	// worker that order is also the execution order; with more workers only
	// start order is guaranteed.
	if cfg.WorkerPoolSize > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.WorkerPoolSize)
		for _, op := range batch {
			g.Go(func() error {
				s.executeOperation(gctx, cfg, op)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, op := range batch {
			s.executeOperation(ctx, cfg, op)
		}
	}

	s.metrics.RecordGauge(observability.MetricQueueDepth, float64(s.queue.Len()), nil)
	return len(batch)
}

// executeOperation runs the attempt/classify/retry loop for one operation.
// Transient failures and timeouts retry in place after a scheduler delay;
// everything else is terminal on the first classification.
func (s *Service) executeOperation(ctx context.Context, cfg Config, op *Operation) {
	for {
		if !s.breaker.Allow() {
			s.failOperation(ctx, op, OutcomeCircuitOpen, "circuit breaker open; write not attempted")
			return
		}

		s.store.RecordAttempt(op)

		attemptCtx, cancel := context.WithTimeout(ctx, cfg.BatchTimeout)
		start := time.Now()
		result, err := s.attempt(attemptCtx, op)
		elapsed := time.Since(start)
		cancel()

		outcome := classifyOutcome(result, err)

		if cfg.EnableIntrospection {
			s.collector.Record(newIntrospection(op, result, elapsed, err))
		}
		s.metrics.RecordHistogram(observability.MetricWriteLatency, elapsed.Seconds(),
			map[string]string{"kind": string(op.Kind)})

		switch outcome {
		case OutcomeSuccess, OutcomeAlreadyExists:
			s.breaker.RecordSuccess()
			s.store.MarkCompleted(op, outcome)
			s.stats.RecordSuccess(op.TotalTime)
			s.metrics.RecordCounter(observability.MetricOperationsSucceeded, 1,
				map[string]string{"outcome": string(outcome)})
			return

		case OutcomePermanentFailure:
			s.failOperation(ctx, op, outcome, errMessage(err))
			return

		default: // transient or timeout
			if op.AttemptCount > op.MaxRetries {
				s.failOperation(ctx, op, outcome, errMessage(err))
				return
			}

			s.store.RecordOutcome(op, outcome, errMessage(err))
			s.stats.RecordRetry()
			s.metrics.RecordCounter(observability.MetricOperationsRetried, 1,
				map[string]string{"kind": string(op.Kind)})

			delay := s.scheduler.Delay(op, op.AttemptCount-1)
			s.logger.Debug(ctx, "Retrying operation",
				"operation_id", op.ID.String(),
				"attempt", op.AttemptCount,
				"outcome", string(outcome),
				"delay", delay.String())

			if err := s.waitRetry(ctx, delay); err != nil {
				// Shutdown interrupted the backoff. The operation stays
				// pending; at-least-once covers only operations the loop
				// finishes.
				return
			}
		}
	}
}

// attempt issues the single driver call for one execution attempt.
func (s *Service) attempt(ctx context.Context, op *Operation) (graph.QueryResult, error) {
	if op.Kind == OperationKindBatch {
		return s.client.ExecuteBatch(ctx, op.Batch)
	}
	return s.client.ExecuteWrite(ctx, op.Query, op.Parameters)
}

// failOperation records a terminal failure: breaker bookkeeping, the
// failed store append, dead-letter eviction, and archiving of the evicted
// entry. Circuit-open skips never touch the breaker's failure counter, so
// a queue full of doomed writes cannot push recovery further away.
func (s *Service) failOperation(ctx context.Context, op *Operation, outcome Outcome, errMsg string) {
	if outcome == OutcomeCircuitOpen {
		s.stats.RecordCircuitTripped()
	} else {
		s.breaker.RecordFailure()
		s.stats.RecordFailure()
	}

	evicted := s.store.MarkFailed(op, outcome, errMsg)
	s.metrics.RecordCounter(observability.MetricOperationsFailed, 1,
		map[string]string{"outcome": string(outcome)})

	s.logger.Warn(ctx, "Operation failed terminally",
		"operation_id", op.ID.String(),
		"kind", string(op.Kind),
		"outcome", string(outcome),
		"attempts", op.AttemptCount,
		"error", errMsg)

	if evicted == nil {
		return
	}

	s.stats.RecordDeadLettered()
	s.metrics.RecordCounter(observability.MetricOperationsDeadLetter, 1,
		map[string]string{"kind": string(evicted.Kind)})
	s.archiveEvicted(ctx, evicted)
}

// archiveEvicted writes an evicted operation to the sqlite archive when one
// is configured. Archive trouble is logged and swallowed; losing an archive
// row must not disturb the drain loop.
func (s *Service) archiveEvicted(ctx context.Context, evicted *Operation) {
	if s.archive == nil {
		return
	}

	st, err := s.store.Get(evicted.ID)
	if err != nil {
		s.logger.Warn(ctx, "Dead-lettered operation dropped before archiving",
			"operation_id", evicted.ID.String())
		return
	}

	if err := s.archive.Insert(ctx, newArchivedOperation(evicted, st)); err != nil {
		s.logger.Error(ctx, "Failed to archive dead-lettered operation",
			"operation_id", evicted.ID.String(),
			"error", err.Error())
	}
}

// waitRetry blocks for the backoff delay, aborting on context cancellation
// or shutdown. An injected sleeper replaces the whole wait in tests.
func (s *Service) waitRetry(ctx context.Context, d time.Duration) error {
	if s.sleeper != nil {
		return s.sleeper(ctx, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return types.NewError(types.SERVICE_STOPPED, "shutdown interrupted retry backoff")
	case <-timer.C:
		return nil
	}
}

// classifyOutcome maps one attempt's result to an Outcome. Failures follow
// the driver's error classification. Successful attempts distinguish created
// from already-present data via the outcome column the upsert queries
// return, falling back to the summary's update counters when no row carries
// the column (a relationship merge whose endpoints are missing returns no
// rows and no updates, and classifies as AlreadyExists).
func classifyOutcome(result graph.QueryResult, err error) Outcome {
	if err != nil {
		switch graph.Classify(err) {
		case graph.ErrorKindTimeout:
			return OutcomeTimeout
		case graph.ErrorKindPermanent:
			return OutcomePermanentFailure
		default:
			return OutcomeTransientFailure
		}
	}

	if created, decided := outcomeFromRecords(result.Records); decided {
		if created {
			return OutcomeSuccess
		}
		return OutcomeAlreadyExists
	}

	if result.Summary.ContainsUpdates() {
		return OutcomeSuccess
	}
	return OutcomeAlreadyExists
}

// outcomeFromRecords scans the outcome column of the returned rows. Any
// "created" row means the write materialized new data; rows uniformly
// reporting "exists" mean it was already present. decided is false when no
// row carries the column.
func outcomeFromRecords(records []map[string]any) (created, decided bool) {
	for _, record := range records {
		v, ok := record["outcome"].(string)
		if !ok {
			continue
		}
		decided = true
		if v == "created" {
			return true, true
		}
	}
	return false, decided
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
