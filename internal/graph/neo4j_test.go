package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lego4005/scribe/internal/types"
)

func TestNewNeo4jClient(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		config := DefaultConfig()
		client, err := NewNeo4jClient(config)

		require.NoError(t, err)
		require.NotNil(t, client)
		assert.Equal(t, config, client.config)
		assert.Nil(t, client.driver)
	})

	t.Run("invalid config", func(t *testing.T) {
		config := GraphClientConfig{
			URI:      "",
			Username: "neo4j",
			Password: "password",
		}

		client, err := NewNeo4jClient(config)

		require.Error(t, err)
		assert.Nil(t, client)

		var scribeErr *types.ScribeError
		if errors.As(err, &scribeErr) {
			assert.Equal(t, ErrCodeGraphInvalidConfig, scribeErr.Code)
		}
	})
}

func TestNeo4jClient_NotConnected(t *testing.T) {
	client, err := NewNeo4jClient(DefaultConfig())
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("execute write", func(t *testing.T) {
		_, err := client.ExecuteWrite(ctx, "MERGE (n:Expert {id: $node_id})", nil)

		require.Error(t, err)
		var scribeErr *types.ScribeError
		require.ErrorAs(t, err, &scribeErr)
		assert.Equal(t, ErrCodeGraphConnectionClosed, scribeErr.Code)
	})

	t.Run("execute batch", func(t *testing.T) {
		_, err := client.ExecuteBatch(ctx, []Statement{{Query: "MERGE (n:Expert {id: $node_id})"}})

		require.Error(t, err)
		var scribeErr *types.ScribeError
		require.ErrorAs(t, err, &scribeErr)
		assert.Equal(t, ErrCodeGraphConnectionClosed, scribeErr.Code)
	})

	t.Run("empty batch rejected before connection check", func(t *testing.T) {
		_, err := client.ExecuteBatch(ctx, nil)

		require.Error(t, err)
		var scribeErr *types.ScribeError
		require.ErrorAs(t, err, &scribeErr)
		assert.Equal(t, ErrCodeGraphInvalidQuery, scribeErr.Code)
	})

	t.Run("health", func(t *testing.T) {
		status := client.Health(ctx)
		assert.True(t, status.IsUnhealthy())
	})

	t.Run("close is a no-op", func(t *testing.T) {
		assert.NoError(t, client.Close(ctx))
	})
}

func TestConvertNeo4jResult(t *testing.T) {
	t.Run("records with values", func(t *testing.T) {
		records := []*neo4j.Record{
			{Keys: []string{"id", "outcome"}, Values: []any{"expert-1", "created"}},
			{Keys: []string{"id", "outcome"}, Values: []any{"expert-2", "exists"}},
		}

		result := convertNeo4jResult(records, nil)

		assert.Equal(t, []string{"id", "outcome"}, result.Columns)
		require.Len(t, result.Records, 2)
		assert.Equal(t, "expert-1", result.Records[0]["id"])
		assert.Equal(t, "created", result.Records[0]["outcome"])
		assert.Equal(t, "exists", result.Records[1]["outcome"])
	})

	t.Run("no records", func(t *testing.T) {
		result := convertNeo4jResult(nil, nil)

		assert.Empty(t, result.Records)
		assert.Empty(t, result.Columns)
		assert.Equal(t, QuerySummary{}, result.Summary)
	})

	t.Run("nil summary leaves counters zero", func(t *testing.T) {
		records := []*neo4j.Record{
			{Keys: []string{"outcome"}, Values: []any{"created"}},
		}

		result := convertNeo4jResult(records, nil)

		assert.Equal(t, 0, result.Summary.NodesCreated)
		assert.False(t, result.Summary.ContainsUpdates())
	})
}
