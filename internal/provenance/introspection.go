package provenance

import (
	"fmt"
	"sync"
	"time"

	"github.com/Lego4005/scribe/internal/graph"
	"github.com/Lego4005/scribe/internal/types"
)

// Bounds for the introspection rolling window.
const (
	defaultIntrospectionLimit = 500
	maxIntrospectionLimit     = 1000
)

// ExecutionStats summarizes what one attempt touched in the store, taken
// from the driver's query summary. Idempotent re-runs report zeros.
type ExecutionStats struct {
	NodesCreated         int `json:"nodes_created"`
	NodesDeleted         int `json:"nodes_deleted"`
	RelationshipsCreated int `json:"relationships_created"`
	RelationshipsDeleted int `json:"relationships_deleted"`
	PropertiesSet        int `json:"properties_set"`
}

// Introspection is the execution record of one attempt against the store.
// The executor emits one per attempted operation; circuit-skipped operations
// produce none because no store call happened.
type Introspection struct {
	OperationID    types.ID       `json:"operation_id"`
	QueryPlan      string         `json:"query_plan"`
	ExecutionStats ExecutionStats `json:"execution_stats"`
	IndexUsage     []string       `json:"index_usage,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
	EstimatedCost  float64        `json:"estimated_cost"`
	ActualTime     time.Duration  `json:"actual_time"`
	RowsAffected   int            `json:"rows_affected"`
	CreatedAt      time.Time      `json:"created_at"`
}

// newIntrospection builds the execution record for one attempt. The plan and
// cost are cheap operator summaries derived from the operation shape, not a
// server-side EXPLAIN.
func newIntrospection(op *Operation, result graph.QueryResult, elapsed time.Duration, err error) Introspection {
	entry := Introspection{
		OperationID: op.ID,
		ExecutionStats: ExecutionStats{
			NodesCreated:         result.Summary.NodesCreated,
			NodesDeleted:         result.Summary.NodesDeleted,
			RelationshipsCreated: result.Summary.RelationshipsCreated,
			RelationshipsDeleted: result.Summary.RelationshipsDeleted,
			PropertiesSet:        result.Summary.PropertiesSet,
		},
		ActualTime:   elapsed,
		RowsAffected: len(result.Records),
		CreatedAt:    time.Now(),
	}

	switch op.Kind {
	case OperationKindNode:
		entry.QueryPlan = fmt.Sprintf("MergeNode(%s)", op.Node.Type)
		entry.IndexUsage = []string{op.Node.Type + "(id)"}
		entry.EstimatedCost = 1
	case OperationKindRelationship:
		entry.QueryPlan = fmt.Sprintf("MergeRelationship(%s-[%s]->%s)",
			op.Relationship.SrcType, op.Relationship.RelType, op.Relationship.DstType)
		entry.IndexUsage = []string{
			op.Relationship.SrcType + "(id)",
			op.Relationship.DstType + "(id)",
		}
		entry.EstimatedCost = 2
	case OperationKindBatch:
		entry.QueryPlan = fmt.Sprintf("Batch(%d)", len(op.Batch))
		entry.EstimatedCost = float64(len(op.Batch))
	}

	if err != nil {
		entry.Warnings = append(entry.Warnings, "attempt failed: "+err.Error())
	} else if op.Kind == OperationKindRelationship && len(result.Records) == 0 {
		entry.Warnings = append(entry.Warnings,
			"relationship endpoints not found; merge did not run")
	}

	return entry
}

// introspectionCollector keeps a rolling window of the most recent execution
// records.
type introspectionCollector struct {
	mu      sync.Mutex
	entries []Introspection
	limit   int
	enabled bool
}

func newIntrospectionCollector(limit int, enabled bool) *introspectionCollector {
	return &introspectionCollector{
		limit:   clampIntrospectionLimit(limit),
		enabled: enabled,
	}
}

func clampIntrospectionLimit(limit int) int {
	if limit <= 0 {
		return defaultIntrospectionLimit
	}
	if limit > maxIntrospectionLimit {
		return maxIntrospectionLimit
	}
	return limit
}

// Record appends an entry and trims the window to its limit. No-op while
// collection is disabled.
func (c *introspectionCollector) Record(entry Introspection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}

	c.entries = append(c.entries, entry)
	if excess := len(c.entries) - c.limit; excess > 0 {
		c.entries = c.entries[excess:]
	}
}

// Query returns up to limit records newest first. A zero operation ID
// matches all operations; limit values outside (0, window] return the whole
// window.
func (c *introspectionCollector) Query(operationID types.ID, limit int) []Introspection {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 || limit > c.limit {
		limit = c.limit
	}

	out := make([]Introspection, 0, min(limit, len(c.entries)))
	for i := len(c.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if !operationID.IsZero() && c.entries[i].OperationID != operationID {
			continue
		}
		out = append(out, c.entries[i])
	}
	return out
}

// SetLimit adjusts the window bound, clamped to [1, 1000], trimming oldest
// entries when shrinking.
func (c *introspectionCollector) SetLimit(limit int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.limit = clampIntrospectionLimit(limit)
	if excess := len(c.entries) - c.limit; excess > 0 {
		c.entries = c.entries[excess:]
	}
}

// SetEnabled toggles collection. Disabling stops new records; the existing
// window stays queryable.
func (c *introspectionCollector) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// Len returns the current window size.
func (c *introspectionCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
