package provenance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lego4005/scribe/internal/graph"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		identifier string
		ok         bool
	}{
		{"Expert", true},
		{"expert_decision", true},
		{"_internal", true},
		{"E2", true},
		{"", false},
		{"2fast", false},
		{"has-dash", false},
		{"has space", false},
		{"semi;colon", false},
		{"Expert) DETACH DELETE (m", false},
	}

	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			err := validateIdentifier("label", tt.identifier)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestBuildNodeUpsert(t *testing.T) {
	spec := NodeSpec{
		Type:       "Expert",
		ID:         "expert-1",
		Properties: map[string]any{"name": "The Analyst", "accuracy": 0.91},
	}

	query, params, err := buildNodeUpsert(spec, "run-42")
	require.NoError(t, err)

	assert.Contains(t, query, "MERGE (n:Expert {id: $node_id})")
	assert.Contains(t, query, "ON CREATE SET n += $properties")
	assert.Contains(t, query, "n.created_at = datetime()")
	assert.Contains(t, query, "ON MATCH SET n.last_updated = datetime()")
	assert.Contains(t, query, "AS outcome")

	assert.Equal(t, "expert-1", params["node_id"])
	assert.Equal(t, "run-42", params["run_id"])
	assert.Equal(t, spec.Properties, params["properties"])
}

func TestBuildNodeUpsertNilProperties(t *testing.T) {
	query, params, err := buildNodeUpsert(NodeSpec{Type: "Game", ID: "game-9"}, "run-1")
	require.NoError(t, err)
	require.Contains(t, query, "MERGE (n:Game {id: $node_id})")

	// Cypher `+=` rejects null, so nil properties must become an empty map.
	props, ok := params["properties"].(map[string]any)
	require.True(t, ok)
	assert.NotNil(t, props)
	assert.Empty(t, props)
}

func TestBuildNodeUpsertRejectsBadSpec(t *testing.T) {
	_, _, err := buildNodeUpsert(NodeSpec{Type: "Expert) DETACH DELETE (m", ID: "x"}, "run-1")
	assert.Error(t, err)

	_, _, err = buildNodeUpsert(NodeSpec{Type: "Expert", ID: ""}, "run-1")
	assert.Error(t, err)
}

func TestBuildRelationshipUpsert(t *testing.T) {
	spec := RelationshipSpec{
		SrcType: "Expert", SrcID: "expert-1",
		DstType: "Decision", DstID: "decision-7",
		RelType: "MADE",
		Properties: map[string]any{
			"confidence": 0.75,
		},
	}

	query, params, err := buildRelationshipUpsert(spec, "run-42")
	require.NoError(t, err)

	assert.Contains(t, query, "MATCH (s:Expert {id: $src_id}), (t:Decision {id: $dst_id})")
	assert.Contains(t, query, "MERGE (s)-[r:MADE]->(t)")
	assert.Contains(t, query, "ON CREATE SET r += $properties")
	assert.Contains(t, query, "AS outcome")

	assert.Equal(t, "expert-1", params["src_id"])
	assert.Equal(t, "decision-7", params["dst_id"])
	assert.Equal(t, "run-42", params["run_id"])
	assert.Equal(t, spec.Properties, params["properties"])
}

func TestBuildRelationshipUpsertRejectsBadSpec(t *testing.T) {
	spec := RelationshipSpec{
		SrcType: "Expert", SrcID: "expert-1",
		DstType: "Decision", DstID: "decision-7",
		RelType: "MADE]->(x) DETACH DELETE x//",
	}
	_, _, err := buildRelationshipUpsert(spec, "run-1")
	assert.Error(t, err)
}

// The builders and the mock client agree on the upsert shape: rendered
// queries must drive the mock's MERGE emulation, create on first execution,
// and report exists on re-execution.
func TestBuildersDriveMockClient(t *testing.T) {
	ctx := context.Background()
	client := graph.NewMockGraphClient()
	require.NoError(t, client.Connect(ctx))

	nodeQuery, nodeParams, err := buildNodeUpsert(
		NodeSpec{Type: "Expert", ID: "expert-1", Properties: map[string]any{"name": "x"}}, "run-1")
	require.NoError(t, err)

	result, err := client.ExecuteWrite(ctx, nodeQuery, nodeParams)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "created", result.Records[0]["outcome"])
	assert.Equal(t, 1, result.Summary.NodesCreated)

	// Idempotent re-run: no new node, outcome flips to exists.
	result, err = client.ExecuteWrite(ctx, nodeQuery, nodeParams)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "exists", result.Records[0]["outcome"])
	assert.Equal(t, 0, result.Summary.NodesCreated)
	assert.Equal(t, 1, client.NodeCount())
	assert.Equal(t, 1, client.EffectiveMutations())

	// Relationship against one existing and one missing endpoint: no rows,
	// no mutation.
	relQuery, relParams, err := buildRelationshipUpsert(RelationshipSpec{
		SrcType: "Expert", SrcID: "expert-1",
		DstType: "Decision", DstID: "decision-1",
		RelType: "MADE",
	}, "run-1")
	require.NoError(t, err)

	result, err = client.ExecuteWrite(ctx, relQuery, relParams)
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Equal(t, 0, client.RelationshipCount())

	// Create the destination, then the relationship merges.
	dstQuery, dstParams, err := buildNodeUpsert(NodeSpec{Type: "Decision", ID: "decision-1"}, "run-1")
	require.NoError(t, err)
	_, err = client.ExecuteWrite(ctx, dstQuery, dstParams)
	require.NoError(t, err)

	result, err = client.ExecuteWrite(ctx, relQuery, relParams)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "created", result.Records[0]["outcome"])
	assert.Equal(t, 1, client.RelationshipCount())
	assert.Equal(t, 3, client.EffectiveMutations())
}
