package graph

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/Lego4005/scribe/internal/types"
)

// MockCall represents a recorded method call on the mock graph client.
type MockCall struct {
	Method     string
	Query      string
	Params     map[string]any
	Statements []Statement
	Timestamp  time.Time
}

// WriteHook lets a test script the outcome of individual write calls.
// seq is the 1-based sequence number of the write (ExecuteWrite and
// ExecuteBatch both count). Returning a non-nil error fails the call
// without touching the mock's stored state.
type WriteHook func(seq int, query string, params map[string]any) error

// MockGraphClient is a deterministic in-memory implementation of GraphClient
// for testing. It emulates idempotent MERGE semantics: repeating the same
// node or relationship upsert mutates nothing and reports zero counters, so
// tests can assert on effective mutations rather than attempt counts.
//
// Outcomes are scripted, never random: tests inject failures per call via
// EnqueueWriteError, SetWriteError, or a WriteHook.
type MockGraphClient struct {
	mu sync.Mutex

	// State
	connected     bool
	healthStatus  types.HealthStatus
	nodes         map[string]mockNode
	relationships map[string]mockRelationship
	calls         []MockCall
	writeSeq      int

	// Effective mutation accounting
	nodesCreated         int
	relationshipsCreated int

	// Configurable behavior
	connectError error
	closeError   error
	writeError   error
	writeErrors  []error
	writeHook    WriteHook
	writeDelay   time.Duration
}

// mockNode represents a stored node, keyed by "Label/id".
type mockNode struct {
	Label string
	ID    string
	Props map[string]any
}

// mockRelationship represents a stored relationship, keyed by
// "SrcLabel/src-[TYPE]->DstLabel/dst".
type mockRelationship struct {
	SrcKey  string
	DstKey  string
	RelType string
	Props   map[string]any
}

// Compile-time check that MockGraphClient implements GraphClient.
var _ GraphClient = (*MockGraphClient)(nil)

// Patterns matching the upsert statements the cypher builders emit. The mock
// only understands that shape; anything else executes as a recorded no-op.
var (
	mergeNodeRe = regexp.MustCompile(`MERGE \(n:([A-Za-z_][A-Za-z0-9_]*) \{id: \$node_id\}\)`)
	mergeRelRe  = regexp.MustCompile(`MATCH \(s:([A-Za-z_][A-Za-z0-9_]*) \{id: \$src_id\}\), \(t:([A-Za-z_][A-Za-z0-9_]*) \{id: \$dst_id\}\)\s+MERGE \(s\)-\[r:([A-Za-z_][A-Za-z0-9_]*)\]->\(t\)`)
)

// NewMockGraphClient creates a new mock graph client for testing.
func NewMockGraphClient() *MockGraphClient {
	return &MockGraphClient{
		healthStatus:  types.Healthy("mock graph client"),
		nodes:         make(map[string]mockNode),
		relationships: make(map[string]mockRelationship),
	}
}

// Connect records the call and simulates connection.
func (m *MockGraphClient) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("Connect", "", nil, nil)

	if m.connectError != nil {
		return m.connectError
	}

	m.connected = true
	return nil
}

// Close records the call and simulates disconnection.
func (m *MockGraphClient) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("Close", "", nil, nil)

	if m.closeError != nil {
		return m.closeError
	}

	m.connected = false
	return nil
}

// Health records the call and returns the configured health status.
func (m *MockGraphClient) Health(ctx context.Context) types.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("Health", "", nil, nil)

	if !m.connected {
		return types.Unhealthy("not connected")
	}

	return m.healthStatus
}

// ExecuteWrite records the call and applies MERGE semantics to the stored
// state, honoring any scripted error for this call.
func (m *MockGraphClient) ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (QueryResult, error) {
	if err := m.beforeWrite(ctx, "ExecuteWrite", cypher, params, nil); err != nil {
		return QueryResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyStatement(cypher, params), nil
}

// ExecuteBatch records the call and applies each statement's MERGE semantics.
// Scripted errors fail the whole batch before any state changes, matching
// the all-or-nothing transaction contract.
func (m *MockGraphClient) ExecuteBatch(ctx context.Context, statements []Statement) (QueryResult, error) {
	if len(statements) == 0 {
		return QueryResult{}, types.NewError(ErrCodeGraphInvalidQuery,
			"batch contains no statements")
	}

	if err := m.beforeWrite(ctx, "ExecuteBatch", "", nil, statements); err != nil {
		return QueryResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	combined := QueryResult{}
	for _, stmt := range statements {
		result := m.applyStatement(stmt.Query, stmt.Parameters)
		combined.Records = append(combined.Records, result.Records...)
		if len(combined.Columns) == 0 {
			combined.Columns = result.Columns
		}
		combined.Summary.Add(result.Summary)
	}
	return combined, nil
}

// beforeWrite records the call, enforces the connected state, applies the
// configured delay, and consumes any scripted error.
func (m *MockGraphClient) beforeWrite(ctx context.Context, method, cypher string, params map[string]any, statements []Statement) error {
	m.mu.Lock()
	m.record(method, cypher, params, statements)

	if !m.connected {
		m.mu.Unlock()
		return types.NewError(ErrCodeGraphConnectionClosed, "not connected")
	}

	m.writeSeq++
	seq := m.writeSeq
	delay := m.writeDelay
	hook := m.writeHook

	var scripted error
	if len(m.writeErrors) > 0 {
		scripted = m.writeErrors[0]
		m.writeErrors = m.writeErrors[1:]
	} else if m.writeError != nil {
		scripted = m.writeError
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if scripted != nil {
		return scripted
	}

	if hook != nil {
		if err := hook(seq, cypher, params); err != nil {
			return err
		}
	}

	return nil
}

// applyStatement applies one statement's MERGE semantics. Caller holds the lock.
func (m *MockGraphClient) applyStatement(cypher string, params map[string]any) QueryResult {
	if match := mergeNodeRe.FindStringSubmatch(cypher); match != nil {
		return m.mergeNode(match[1], params)
	}
	if match := mergeRelRe.FindStringSubmatch(cypher); match != nil {
		return m.mergeRelationship(match[1], match[2], match[3], params)
	}

	// Unrecognized statements execute as successful no-ops.
	return QueryResult{Records: []map[string]any{}, Columns: []string{}}
}

func (m *MockGraphClient) mergeNode(label string, params map[string]any) QueryResult {
	nodeID, _ := params["node_id"].(string)
	key := label + "/" + nodeID

	outcome := "exists"
	summary := QuerySummary{}

	if _, found := m.nodes[key]; !found {
		props, _ := params["properties"].(map[string]any)
		m.nodes[key] = mockNode{Label: label, ID: nodeID, Props: props}
		m.nodesCreated++
		outcome = "created"
		summary.NodesCreated = 1
		summary.PropertiesSet = len(props) + 2 // created_at and run_id
	}

	return QueryResult{
		Records: []map[string]any{{"id": nodeID, "outcome": outcome}},
		Columns: []string{"id", "outcome"},
		Summary: summary,
	}
}

func (m *MockGraphClient) mergeRelationship(srcLabel, dstLabel, relType string, params map[string]any) QueryResult {
	srcID, _ := params["src_id"].(string)
	dstID, _ := params["dst_id"].(string)
	srcKey := srcLabel + "/" + srcID
	dstKey := dstLabel + "/" + dstID

	// MATCH finds nothing when an endpoint is missing: the MERGE never runs
	// and the query succeeds with no rows, same as the real store.
	if _, found := m.nodes[srcKey]; !found {
		return QueryResult{Records: []map[string]any{}, Columns: []string{}}
	}
	if _, found := m.nodes[dstKey]; !found {
		return QueryResult{Records: []map[string]any{}, Columns: []string{}}
	}

	key := fmt.Sprintf("%s-[%s]->%s", srcKey, relType, dstKey)

	outcome := "exists"
	summary := QuerySummary{}

	if _, found := m.relationships[key]; !found {
		props, _ := params["properties"].(map[string]any)
		m.relationships[key] = mockRelationship{
			SrcKey:  srcKey,
			DstKey:  dstKey,
			RelType: relType,
			Props:   props,
		}
		m.relationshipsCreated++
		outcome = "created"
		summary.RelationshipsCreated = 1
		summary.PropertiesSet = len(props) + 2
	}

	return QueryResult{
		Records: []map[string]any{{"outcome": outcome}},
		Columns: []string{"outcome"},
		Summary: summary,
	}
}

// record appends a MockCall. Caller holds the lock.
func (m *MockGraphClient) record(method, cypher string, params map[string]any, statements []Statement) {
	m.calls = append(m.calls, MockCall{
		Method:     method,
		Query:      cypher,
		Params:     params,
		Statements: statements,
		Timestamp:  time.Now(),
	})
}

// SetHealthStatus configures what Health() should return.
func (m *MockGraphClient) SetHealthStatus(status types.HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthStatus = status
}

// SetConnectError configures Connect() to return an error.
func (m *MockGraphClient) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectError = err
}

// SetCloseError configures Close() to return an error.
func (m *MockGraphClient) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeError = err
}

// SetWriteError configures every write to return err until cleared with nil.
// Scripted FIFO errors from EnqueueWriteError take precedence.
func (m *MockGraphClient) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeError = err
}

// EnqueueWriteError schedules err for the next write call (FIFO). Each
// enqueued error fails exactly one write.
func (m *MockGraphClient) EnqueueWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErrors = append(m.writeErrors, err)
}

// SetWriteHook installs a per-call outcome script. The hook runs after FIFO
// and sticky errors are consulted.
func (m *MockGraphClient) SetWriteHook(hook WriteHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeHook = hook
}

// SetWriteDelay makes every write sleep for d before returning, emulating a
// slow backing store.
func (m *MockGraphClient) SetWriteDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeDelay = d
}

// GetCalls returns a copy of all recorded method calls.
func (m *MockGraphClient) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]MockCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// GetCallsByMethod returns all calls to a specific method.
func (m *MockGraphClient) GetCallsByMethod(method string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]MockCall, 0)
	for _, call := range m.calls {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

// CallCount returns the total number of method calls.
func (m *MockGraphClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// WriteCount returns the number of write calls (attempts), successful or not.
func (m *MockGraphClient) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeSeq
}

// NodeCount returns the number of distinct stored nodes.
func (m *MockGraphClient) NodeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// RelationshipCount returns the number of distinct stored relationships.
func (m *MockGraphClient) RelationshipCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.relationships)
}

// EffectiveMutations returns the number of writes that actually changed the
// stored graph: nodes plus relationships created. Re-running an upsert does
// not move this counter.
func (m *MockGraphClient) EffectiveMutations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodesCreated + m.relationshipsCreated
}

// HasNode reports whether a node with the given label and id is stored.
func (m *MockGraphClient) HasNode(label, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, found := m.nodes[label+"/"+id]
	return found
}

// IsConnected returns whether the mock is in connected state.
func (m *MockGraphClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Reset clears all recorded calls and resets the mock to its initial state.
func (m *MockGraphClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = false
	m.healthStatus = types.Healthy("mock graph client")
	m.nodes = make(map[string]mockNode)
	m.relationships = make(map[string]mockRelationship)
	m.calls = nil
	m.writeSeq = 0
	m.nodesCreated = 0
	m.relationshipsCreated = 0
	m.connectError = nil
	m.closeError = nil
	m.writeError = nil
	m.writeErrors = nil
	m.writeHook = nil
	m.writeDelay = 0
}
