package graph

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/Lego4005/scribe/internal/types"
)

// Graph database error codes
const (
	// Connection errors
	ErrCodeGraphConnectionFailed types.ErrorCode = "GRAPH_CONNECTION_FAILED"
	ErrCodeGraphConnectionLost   types.ErrorCode = "GRAPH_CONNECTION_LOST"
	ErrCodeGraphConnectionClosed types.ErrorCode = "GRAPH_CONNECTION_CLOSED"

	// Configuration errors
	ErrCodeGraphInvalidConfig types.ErrorCode = "GRAPH_INVALID_CONFIG"

	// Query errors
	ErrCodeGraphQueryFailed   types.ErrorCode = "GRAPH_QUERY_FAILED"
	ErrCodeGraphQueryTimeout  types.ErrorCode = "GRAPH_QUERY_TIMEOUT"
	ErrCodeGraphInvalidQuery  types.ErrorCode = "GRAPH_INVALID_QUERY"
	ErrCodeGraphResultParsing types.ErrorCode = "GRAPH_RESULT_PARSING"

	// Batch errors
	ErrCodeGraphBatchFailed types.ErrorCode = "GRAPH_BATCH_FAILED"
)

// ErrorKind classifies a failed graph write for retry decisions.
type ErrorKind int

const (
	// ErrorKindUnknown means the error could not be classified. Callers
	// decide the retry policy for unknown errors; retrying is safe because
	// all writes are idempotent upserts.
	ErrorKindUnknown ErrorKind = iota

	// ErrorKindTransient covers network and availability failures that may
	// succeed on retry: connection refused/reset, leader switches, the
	// server's own transient error class.
	ErrorKindTransient

	// ErrorKindTimeout covers deadline and i/o timeout failures. Retried
	// like transient failures.
	ErrorKindTimeout

	// ErrorKindPermanent covers schema, constraint, and statement errors
	// that will fail identically on every retry.
	ErrorKindPermanent
)

// String returns the string representation of the ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTransient:
		return "transient"
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Retryable reports whether an attempt that failed with this kind is worth
// repeating. Unknown errors count as retryable: the writes are idempotent,
// so a wasted retry is cheaper than a lost record.
func (k ErrorKind) Retryable() bool {
	return k != ErrorKindPermanent
}

// Classify maps a graph write error to an ErrorKind. Typed driver errors are
// preferred: the Neo4j status code prefix decides the class. For errors the
// driver does not type, classifyMessage keyword-matches the message as a
// documented fallback heuristic.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTimeout
	}

	if neo4j.IsConnectivityError(err) {
		return ErrorKindTransient
	}

	var neoErr *db.Neo4jError
	if errors.As(err, &neoErr) {
		if kind := classifyNeo4jCode(neoErr.Code); kind != ErrorKindUnknown {
			return kind
		}
	}

	return classifyMessage(err.Error())
}

// classifyNeo4jCode classifies by the server status code, e.g.
// "Neo.TransientError.General.DatabaseUnavailable" or
// "Neo.ClientError.Schema.ConstraintValidationFailed".
func classifyNeo4jCode(code string) ErrorKind {
	switch {
	case strings.HasPrefix(code, "Neo.TransientError."):
		return ErrorKindTransient
	case code == "Neo.ClientError.Cluster.NotALeader",
		code == "Neo.ClientError.General.ForbiddenOnReadOnlyDatabase",
		code == "Neo.ClientError.Security.AuthorizationExpired":
		// Cluster role changes resolve once the driver re-routes.
		return ErrorKindTransient
	case strings.HasPrefix(code, "Neo.ClientError."):
		return ErrorKindPermanent
	case strings.HasPrefix(code, "Neo.DatabaseError.Schema."),
		strings.HasPrefix(code, "Neo.DatabaseError.Statement."):
		return ErrorKindPermanent
	case strings.HasPrefix(code, "Neo.DatabaseError."):
		return ErrorKindTransient
	default:
		return ErrorKindUnknown
	}
}

// classifyMessage is the fallback heuristic: keyword matching on the
// lowercased error message. Only consulted when no typed classification
// applies.
func classifyMessage(msg string) ErrorKind {
	m := strings.ToLower(msg)

	switch {
	case strings.Contains(m, "timeout"),
		strings.Contains(m, "timed out"),
		strings.Contains(m, "deadline exceeded"):
		return ErrorKindTimeout
	case strings.Contains(m, "connection refused"),
		strings.Contains(m, "connection reset"),
		strings.Contains(m, "connection lost"),
		strings.Contains(m, "broken pipe"),
		strings.Contains(m, "no route to host"),
		strings.Contains(m, "unavailable"),
		strings.Contains(m, "eof"),
		strings.Contains(m, "pool full"):
		return ErrorKindTransient
	case strings.Contains(m, "constraint"),
		strings.Contains(m, "syntax"),
		strings.Contains(m, "malformed"),
		strings.Contains(m, "schema"),
		strings.Contains(m, "parameter missing"),
		strings.Contains(m, "unknown function"),
		strings.Contains(m, "type mismatch"):
		return ErrorKindPermanent
	default:
		return ErrorKindUnknown
	}
}

// wrapWriteError wraps a driver error into a ScribeError whose code and
// retryability follow the error's classification.
func wrapWriteError(code types.ErrorCode, message string, cause error) *types.ScribeError {
	kind := Classify(cause)
	if kind == ErrorKindTimeout {
		code = ErrCodeGraphQueryTimeout
	}
	if kind.Retryable() {
		return types.WrapRetryableError(code, message, cause)
	}
	return types.WrapError(code, message, cause)
}
