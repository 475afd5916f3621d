// Package graph provides the graph database client abstraction the
// write-behind service persists provenance through.
//
// The package defines a generic GraphClient interface that can be implemented
// for different graph database backends. The primary implementation is for
// Neo4j, but the interface design allows for other graph databases to be
// integrated.
//
// # Architecture
//
//   - GraphClient: Core interface defining the write contract
//   - Neo4jClient: Production implementation using the Neo4j Go driver
//   - MockGraphClient: Deterministic test implementation
//
// # Usage
//
// Basic usage with Neo4j:
//
//	config := graph.DefaultConfig()
//	config.URI = "bolt://localhost:7687"
//	config.Username = "neo4j"
//	config.Password = "password"
//
//	client, err := graph.NewNeo4jClient(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx := context.Background()
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close(ctx)
//
//	result, err := client.ExecuteWrite(ctx,
//	    "MERGE (n:Expert {id: $node_id}) RETURN n.id AS id",
//	    map[string]any{"node_id": "expert-7"},
//	)
//
// # Connection Management
//
// The Neo4j client uses connection pooling with configurable limits:
//
//   - MaxConnectionPoolSize: Maximum connections in the pool (default: 50)
//   - ConnectionTimeout: Timeout for acquiring a connection (default: 30s)
//   - MaxTransactionRetryTime: Maximum retry time for transactions (default: 30s)
//
// Connections are automatically retried with exponential backoff on failure.
//
// # Error Classification
//
// Failed writes are classified by Classify into transient, timeout, and
// permanent kinds so callers can make retry decisions. Typed driver errors
// are preferred; substring matching on the error message is the documented
// fallback for errors the driver does not type.
package graph
