package provenance

import (
	"fmt"
	"sync"
	"time"

	"github.com/Lego4005/scribe/internal/types"
)

// Dead-letter entries held in memory are capped at this multiple of the
// dead-letter threshold; beyond it the oldest entry is dropped (the SQLite
// archive, when enabled, still holds it).
const deadLetterCapacityMultiple = 10

// pendingQueue holds operations awaiting execution, bounded and banded by
// priority. Pop drains the high band first and preserves FIFO order within
// each band. The submission hot path only ever touches this queue, so the
// critical section is a bare append.
type pendingQueue struct {
	mu       sync.Mutex
	bands    [3][]*Operation
	size     int
	capacity int
	closed   bool
}

func newPendingQueue(capacity int) *pendingQueue {
	if capacity <= 0 {
		capacity = 10000
	}
	return &pendingQueue{capacity: capacity}
}

// Push appends op to its priority band. Fails fast when the queue is full
// or closed; it never blocks.
func (q *pendingQueue) Push(op *Operation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return types.NewError(types.SERVICE_STOPPED,
			"service is shutting down; submission rejected")
	}
	if q.size >= q.capacity {
		return types.NewError(types.QUEUE_FULL,
			fmt.Sprintf("pending queue is full (%d operations)", q.capacity))
	}

	q.bands[op.Priority-1] = append(q.bands[op.Priority-1], op)
	q.size++
	return nil
}

// Pop atomically removes and returns up to max operations in drain order:
// all of the high band before any of the normal band before any of the low
// band, FIFO within each.
func (q *pendingQueue) Pop(max int) []*Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	if max <= 0 || q.size == 0 {
		return nil
	}

	out := make([]*Operation, 0, min(max, q.size))
	for b := range q.bands {
		if len(out) == max {
			break
		}
		n := min(max-len(out), len(q.bands[b]))
		out = append(out, q.bands[b][:n]...)
		q.bands[b] = q.bands[b][n:]
	}

	q.size -= len(out)
	return out
}

// Len returns the number of queued operations.
func (q *pendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// SetCapacity adjusts the bound. Shrinking below the current size keeps the
// queued operations; new pushes fail until the backlog drains.
func (q *pendingQueue) SetCapacity(capacity int) {
	if capacity <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.capacity = capacity
}

// Close rejects all further pushes. Idempotent; already-queued operations
// remain poppable for a final drain.
func (q *pendingQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// operationStore tracks every submitted operation by ID across its whole
// lifecycle and owns the terminal stores. All mutation of operation status
// fields happens under this mutex, which is what makes status snapshots
// race-free while the executor works.
type operationStore struct {
	mu sync.Mutex

	index      map[types.ID]*Operation
	completed  []*Operation
	failed     []*Operation
	deadLetter []*Operation

	deadLetterThreshold int
}

func newOperationStore(deadLetterThreshold int) *operationStore {
	if deadLetterThreshold <= 0 {
		deadLetterThreshold = 100
	}
	return &operationStore{
		index:               make(map[types.ID]*Operation),
		deadLetterThreshold: deadLetterThreshold,
	}
}

// Track registers a newly submitted operation.
func (s *operationStore) Track(op *Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[op.ID]; exists {
		return types.NewError(types.OPERATION_INVALID,
			fmt.Sprintf("operation %s is already tracked", op.ID))
	}
	s.index[op.ID] = op
	return nil
}

// Untrack rolls back a Track when the enqueue that follows it fails. Only
// valid for operations that never reached the executor.
func (s *operationStore) Untrack(id types.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.index, id)
}

// Get returns a snapshot of the operation, in any state including
// dead-letter.
func (s *operationStore) Get(id types.ID) (OperationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, found := s.index[id]
	if !found {
		return OperationStatus{}, types.NewError(types.OPERATION_NOT_FOUND,
			fmt.Sprintf("operation %s not found", id))
	}
	return op.snapshot(), nil
}

// RecordAttempt marks the start of an execution attempt.
func (s *operationStore) RecordAttempt(op *Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op.AttemptCount++
	op.LastAttemptAt = time.Now()
}

// RecordOutcome notes a non-terminal attempt result, visible to status
// queries while the executor sleeps between retries.
func (s *operationStore) RecordOutcome(op *Operation, outcome Outcome, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op.LastOutcome = outcome
	op.LastError = errMsg
}

// MarkCompleted moves the operation to its terminal success state.
func (s *operationStore) MarkCompleted(op *Operation, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op.State = OperationStateCompleted
	op.LastOutcome = outcome
	op.LastError = ""
	op.CompletedAt = time.Now()
	op.TotalTime = op.CompletedAt.Sub(op.CreatedAt)
	s.completed = append(s.completed, op)
}

// MarkFailed moves the operation to its terminal failed state. When the
// failed store exceeds the dead-letter threshold, exactly one operation (the
// oldest failure) is evicted to the dead-letter queue and returned so the
// caller can archive and count it.
func (s *operationStore) MarkFailed(op *Operation, outcome Outcome, errMsg string) *Operation {
	s.mu.Lock()
	defer s.mu.Unlock()

	op.State = OperationStateFailed
	op.LastOutcome = outcome
	op.LastError = errMsg
	op.CompletedAt = time.Now()
	op.TotalTime = op.CompletedAt.Sub(op.CreatedAt)
	s.failed = append(s.failed, op)

	if len(s.failed) <= s.deadLetterThreshold {
		return nil
	}

	evicted := s.failed[0]
	s.failed = s.failed[1:]
	evicted.State = OperationStateDeadLetter
	s.deadLetter = append(s.deadLetter, evicted)

	if limit := s.deadLetterThreshold * deadLetterCapacityMultiple; len(s.deadLetter) > limit {
		dropped := s.deadLetter[0]
		s.deadLetter = s.deadLetter[1:]
		delete(s.index, dropped.ID)
	}

	return evicted
}

// TakeDeadLetter removes the operation from the dead-letter queue and
// returns it. The operation stays indexed.
func (s *operationStore) TakeDeadLetter(id types.ID) (*Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, op := range s.deadLetter {
		if op.ID == id {
			s.deadLetter = append(s.deadLetter[:i], s.deadLetter[i+1:]...)
			return op, nil
		}
	}
	return nil, types.NewError(types.OPERATION_NOT_FOUND,
		fmt.Sprintf("operation %s is not in the dead-letter queue", id))
}

// RestoreDeadLetter puts an operation back after a failed requeue.
func (s *operationStore) RestoreDeadLetter(op *Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op.State = OperationStateDeadLetter
	s.deadLetter = append(s.deadLetter, op)
}

// ResetForRequeue clears the status fields so a dead-letter operation can
// run again under the same ID.
func (s *operationStore) ResetForRequeue(op *Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op.State = OperationStatePending
	op.AttemptCount = 0
	op.LastAttemptAt = time.Time{}
	op.LastOutcome = ""
	op.LastError = ""
	op.CompletedAt = time.Time{}
	op.TotalTime = 0
}

// ClearDeadLetter discards all dead-letter operations and stops tracking
// them. Returns the number cleared. The SQLite archive, when enabled, is
// left intact.
func (s *operationStore) ClearDeadLetter() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.deadLetter)
	for _, op := range s.deadLetter {
		delete(s.index, op.ID)
	}
	s.deadLetter = nil
	return n
}

// DeadLetterSnapshot lists the dead-letter queue in eviction order (oldest
// first).
func (s *operationStore) DeadLetterSnapshot() []OperationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]OperationStatus, len(s.deadLetter))
	for i, op := range s.deadLetter {
		out[i] = op.snapshot()
	}
	return out
}

// SetDeadLetterThreshold adjusts the failed-store bound at runtime.
func (s *operationStore) SetDeadLetterThreshold(threshold int) {
	if threshold <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadLetterThreshold = threshold
}

// Counts returns the completed, failed, and dead-letter store sizes.
func (s *operationStore) Counts() (completed, failed, deadLetter int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed), len(s.failed), len(s.deadLetter)
}
