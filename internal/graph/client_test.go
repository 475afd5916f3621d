package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lego4005/scribe/internal/types"
)

func TestGraphClientConfig_Validate(t *testing.T) {
	valid := func() GraphClientConfig {
		return GraphClientConfig{
			URI:                     "bolt://localhost:7687",
			Username:                "neo4j",
			Password:                "password",
			ConnectionTimeout:       30 * time.Second,
			MaxTransactionRetryTime: 30 * time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*GraphClientConfig)
		wantErr bool
	}{
		{"valid config", func(c *GraphClientConfig) {}, false},
		{"empty URI", func(c *GraphClientConfig) { c.URI = "" }, true},
		{"empty username", func(c *GraphClientConfig) { c.Username = "" }, true},
		{"empty password", func(c *GraphClientConfig) { c.Password = "" }, true},
		{"zero connection timeout", func(c *GraphClientConfig) { c.ConnectionTimeout = 0 }, true},
		{"negative retry time", func(c *GraphClientConfig) { c.MaxTransactionRetryTime = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(&config)

			err := config.Validate()
			if tt.wantErr {
				require.Error(t, err)

				var scribeErr *types.ScribeError
				require.True(t, errors.As(err, &scribeErr))
				assert.Equal(t, ErrCodeGraphInvalidConfig, scribeErr.Code)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "bolt://localhost:7687", config.URI)
	assert.Equal(t, "neo4j", config.Username)
	assert.Equal(t, 50, config.MaxConnectionPoolSize)
	assert.NoError(t, config.Validate())
}

func TestQuerySummary_Add(t *testing.T) {
	total := QuerySummary{NodesCreated: 1, PropertiesSet: 3}
	total.Add(QuerySummary{NodesCreated: 2, RelationshipsCreated: 1, PropertiesSet: 4})

	assert.Equal(t, 3, total.NodesCreated)
	assert.Equal(t, 1, total.RelationshipsCreated)
	assert.Equal(t, 7, total.PropertiesSet)
}

func TestQuerySummary_ContainsUpdates(t *testing.T) {
	assert.False(t, QuerySummary{}.ContainsUpdates())
	assert.False(t, QuerySummary{ExecutionTime: time.Second}.ContainsUpdates())
	assert.True(t, QuerySummary{NodesCreated: 1}.ContainsUpdates())
	assert.True(t, QuerySummary{RelationshipsCreated: 1}.ContainsUpdates())
	assert.True(t, QuerySummary{PropertiesSet: 1}.ContainsUpdates())
}
