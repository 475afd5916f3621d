package provenance

import (
	"fmt"
	"time"

	"github.com/Lego4005/scribe/internal/graph"
	"github.com/Lego4005/scribe/internal/types"
)

// OperationKind identifies which payload variant an Operation carries.
type OperationKind string

const (
	// OperationKindNode upserts a single node.
	OperationKindNode OperationKind = "create_node"
	// OperationKindRelationship upserts a single relationship between two
	// existing nodes.
	OperationKindRelationship OperationKind = "create_relationship"
	// OperationKindBatch executes a list of statements as one transaction.
	OperationKindBatch OperationKind = "batch"
)

// IsValid checks if the OperationKind is a known value.
func (k OperationKind) IsValid() bool {
	switch k {
	case OperationKindNode, OperationKindRelationship, OperationKindBatch:
		return true
	default:
		return false
	}
}

// String returns the string representation of the OperationKind.
func (k OperationKind) String() string {
	return string(k)
}

// Priority orders operations in the pending queue. Lower numbers drain
// first; operations of equal priority drain FIFO.
type Priority int

const (
	// PriorityHigh is drained before all other bands.
	PriorityHigh Priority = 1
	// PriorityNormal is the default band.
	PriorityNormal Priority = 2
	// PriorityLow drains only after the other bands are empty.
	PriorityLow Priority = 3
)

// IsValid checks if the Priority is a known band.
func (p Priority) IsValid() bool {
	return p >= PriorityHigh && p <= PriorityLow
}

// String returns the string representation of the Priority.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// OperationState is the lifecycle state of an operation. An operation is in
// exactly one state at any time, and only the background executor moves it
// to a terminal state.
type OperationState string

const (
	// OperationStatePending means the operation is queued or mid-execution.
	OperationStatePending OperationState = "pending"
	// OperationStateCompleted means the write succeeded (created or already
	// existed). Terminal.
	OperationStateCompleted OperationState = "completed"
	// OperationStateFailed means retries were exhausted, the failure was
	// permanent, or the circuit was open. Terminal.
	OperationStateFailed OperationState = "failed"
	// OperationStateDeadLetter means the operation was evicted from the
	// failed store into the dead-letter queue. Terminal.
	OperationStateDeadLetter OperationState = "dead_letter"
)

// String returns the string representation of the OperationState.
func (s OperationState) String() string {
	return string(s)
}

// IsTerminal reports whether the state is final. Terminal records are
// immutable.
func (s OperationState) IsTerminal() bool {
	return s == OperationStateCompleted || s == OperationStateFailed ||
		s == OperationStateDeadLetter
}

// Outcome classifies the result of one execution attempt.
type Outcome string

const (
	// OutcomeSuccess means the write applied and changed the store.
	OutcomeSuccess Outcome = "success"
	// OutcomeAlreadyExists means the upsert matched an existing record and
	// changed nothing. Counts as success for completion purposes.
	OutcomeAlreadyExists Outcome = "already_exists"
	// OutcomeTransientFailure means the attempt failed in a way that may
	// succeed on retry.
	OutcomeTransientFailure Outcome = "transient_failure"
	// OutcomePermanentFailure means retrying is pointless; the operation
	// fails terminally on first classification.
	OutcomePermanentFailure Outcome = "permanent_failure"
	// OutcomeTimeout means the attempt exceeded its deadline. Retried like a
	// transient failure.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeCircuitOpen means the breaker disallowed the attempt. No store
	// call was made.
	OutcomeCircuitOpen Outcome = "circuit_open"
)

// String returns the string representation of the Outcome.
func (o Outcome) String() string {
	return string(o)
}

// IsSuccess reports whether the outcome completes the operation.
func (o Outcome) IsSuccess() bool {
	return o == OutcomeSuccess || o == OutcomeAlreadyExists
}

// IsRetryable reports whether the executor may attempt the operation again.
func (o Outcome) IsRetryable() bool {
	return o == OutcomeTransientFailure || o == OutcomeTimeout
}

// RetryStrategy selects the backoff curve between attempts.
type RetryStrategy string

const (
	// StrategyExponential doubles the delay every attempt: base * 2^attempt.
	StrategyExponential RetryStrategy = "exponential"
	// StrategyLinear grows the delay linearly: base * (attempt+1).
	StrategyLinear RetryStrategy = "linear"
	// StrategyFixed uses the base delay for every attempt.
	StrategyFixed RetryStrategy = "fixed"
	// StrategyFibonacci follows the fibonacci sequence: base * fib(attempt).
	StrategyFibonacci RetryStrategy = "fibonacci"
)

// IsValid checks if the RetryStrategy is a known value.
func (s RetryStrategy) IsValid() bool {
	switch s {
	case StrategyExponential, StrategyLinear, StrategyFixed, StrategyFibonacci:
		return true
	default:
		return false
	}
}

// String returns the string representation of the RetryStrategy.
func (s RetryStrategy) String() string {
	return string(s)
}

// NodeSpec describes a node upsert submitted by a producer.
type NodeSpec struct {
	// Type is the node label, e.g. "Expert", "Decision", "Game". Must be a
	// valid identifier (letters, digits, underscore; no leading digit).
	Type string `json:"type"`

	// ID is the stable business identifier the upsert merges on.
	ID string `json:"id"`

	// Properties are set on creation only; matches update last_updated.
	Properties map[string]any `json:"properties,omitempty"`
}

// Validate checks the spec before an operation is built from it.
func (s NodeSpec) Validate() error {
	if err := validateIdentifier("node type", s.Type); err != nil {
		return err
	}
	if s.ID == "" {
		return types.NewError(types.OPERATION_INVALID, "node id cannot be empty")
	}
	return nil
}

// RelationshipSpec describes a relationship upsert between two nodes that
// are expected to exist. If either endpoint is missing the write succeeds
// with no rows, matching MATCH semantics.
type RelationshipSpec struct {
	SrcType string `json:"src_type"`
	SrcID   string `json:"src_id"`
	DstType string `json:"dst_type"`
	DstID   string `json:"dst_id"`

	// RelType is the relationship type, e.g. "MADE", "PREDICTS". Same
	// identifier rules as node labels.
	RelType string `json:"rel_type"`

	Properties map[string]any `json:"properties,omitempty"`
}

// Validate checks the spec before an operation is built from it.
func (s RelationshipSpec) Validate() error {
	if err := validateIdentifier("source type", s.SrcType); err != nil {
		return err
	}
	if err := validateIdentifier("destination type", s.DstType); err != nil {
		return err
	}
	if err := validateIdentifier("relationship type", s.RelType); err != nil {
		return err
	}
	if s.SrcID == "" {
		return types.NewError(types.OPERATION_INVALID, "source id cannot be empty")
	}
	if s.DstID == "" {
		return types.NewError(types.OPERATION_INVALID, "destination id cannot be empty")
	}
	return nil
}

// Operation is one unit of write-behind work. The identity, payload, and
// retry policy fields are fixed at submission; the status fields are owned
// by the background executor and mutated only under the operation store
// mutex. Once the state turns terminal the record is immutable.
type Operation struct {
	ID   types.ID      `json:"id"`
	Kind OperationKind `json:"kind"`

	// Tagged union: exactly one of the following is set, matching Kind.
	Node         *NodeSpec         `json:"node,omitempty"`
	Relationship *RelationshipSpec `json:"relationship,omitempty"`
	Batch        []graph.Statement `json:"batch,omitempty"`

	// Rendered upsert for node and relationship kinds. Batch kinds carry
	// their statements in Batch instead.
	Query      string         `json:"query,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// Retry policy, fixed at submission.
	MaxRetries int           `json:"max_retries"`
	Strategy   RetryStrategy `json:"strategy"`
	BaseDelay  time.Duration `json:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay"`

	Priority Priority `json:"priority"`
	RunID    string   `json:"run_id,omitempty"`

	// Status, executor-owned.
	State         OperationState `json:"state"`
	AttemptCount  int            `json:"attempt_count"`
	LastAttemptAt time.Time      `json:"last_attempt_at,omitempty"`
	LastOutcome   Outcome        `json:"last_outcome,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   time.Time      `json:"completed_at,omitempty"`
	TotalTime     time.Duration  `json:"total_time,omitempty"`
}

// Validate checks structural integrity: a known kind, exactly one payload
// variant matching it, and a sane retry policy.
func (op *Operation) Validate() error {
	if op.ID.IsZero() {
		return types.NewError(types.OPERATION_INVALID, "operation id is not set")
	}
	if !op.Kind.IsValid() {
		return types.NewError(types.OPERATION_INVALID,
			"unknown operation kind: "+string(op.Kind))
	}
	if !op.Priority.IsValid() {
		return types.NewError(types.OPERATION_INVALID,
			"priority must be 1 (high), 2 (normal), or 3 (low)")
	}
	if !op.Strategy.IsValid() {
		return types.NewError(types.OPERATION_INVALID,
			"unknown retry strategy: "+string(op.Strategy))
	}
	if op.MaxRetries < 0 {
		return types.NewError(types.OPERATION_INVALID, "max retries cannot be negative")
	}
	if op.BaseDelay <= 0 {
		return types.NewError(types.OPERATION_INVALID, "base delay must be positive")
	}

	switch op.Kind {
	case OperationKindNode:
		if op.Node == nil || op.Relationship != nil || len(op.Batch) > 0 {
			return types.NewError(types.OPERATION_INVALID,
				"node operation must carry exactly a node spec")
		}
		if op.Query == "" {
			return types.NewError(types.OPERATION_INVALID, "node operation has no query")
		}
	case OperationKindRelationship:
		if op.Relationship == nil || op.Node != nil || len(op.Batch) > 0 {
			return types.NewError(types.OPERATION_INVALID,
				"relationship operation must carry exactly a relationship spec")
		}
		if op.Query == "" {
			return types.NewError(types.OPERATION_INVALID, "relationship operation has no query")
		}
	case OperationKindBatch:
		if len(op.Batch) == 0 || op.Node != nil || op.Relationship != nil {
			return types.NewError(types.OPERATION_INVALID,
				"batch operation must carry at least one statement and nothing else")
		}
		for i, stmt := range op.Batch {
			if stmt.Query == "" {
				return types.NewError(types.OPERATION_INVALID,
					fmt.Sprintf("batch statement %d has an empty query", i))
			}
		}
	}

	return nil
}

// snapshot copies the observable fields into an immutable status value.
// Caller must hold the store mutex.
func (op *Operation) snapshot() OperationStatus {
	return OperationStatus{
		ID:            op.ID,
		Kind:          op.Kind,
		State:         op.State,
		Priority:      op.Priority,
		RunID:         op.RunID,
		AttemptCount:  op.AttemptCount,
		MaxRetries:    op.MaxRetries,
		LastOutcome:   op.LastOutcome,
		LastError:     op.LastError,
		CreatedAt:     op.CreatedAt,
		LastAttemptAt: op.LastAttemptAt,
		CompletedAt:   op.CompletedAt,
		TotalTime:     op.TotalTime,
	}
}

// OperationStatus is a point-in-time snapshot of an operation's lifecycle,
// safe to hand to callers while the executor keeps working.
type OperationStatus struct {
	ID            types.ID       `json:"id"`
	Kind          OperationKind  `json:"kind"`
	State         OperationState `json:"state"`
	Priority      Priority       `json:"priority"`
	RunID         string         `json:"run_id,omitempty"`
	AttemptCount  int            `json:"attempt_count"`
	MaxRetries    int            `json:"max_retries"`
	LastOutcome   Outcome        `json:"last_outcome,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	LastAttemptAt time.Time      `json:"last_attempt_at,omitempty"`
	CompletedAt   time.Time      `json:"completed_at,omitempty"`
	TotalTime     time.Duration  `json:"total_time,omitempty"`
}
