package provenance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Lego4005/scribe/internal/types"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS dead_letter_operations (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	run_id        TEXT,
	priority      INTEGER NOT NULL,
	query         TEXT,
	parameters    TEXT,
	statements    TEXT,
	attempt_count INTEGER NOT NULL,
	last_outcome  TEXT,
	last_error    TEXT,
	created_at    TIMESTAMP NOT NULL,
	archived_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dead_letter_archived_at
	ON dead_letter_operations(archived_at);
`

// ArchivedOperation is one row of the dead-letter archive. Parameters and
// Statements hold the JSON-serialized payload so an operator can reconstruct
// and re-drive the write by hand.
type ArchivedOperation struct {
	ID           types.ID      `json:"id"`
	Kind         OperationKind `json:"kind"`
	RunID        string        `json:"run_id,omitempty"`
	Priority     Priority      `json:"priority"`
	Query        string        `json:"query,omitempty"`
	Parameters   string        `json:"parameters,omitempty"`
	Statements   string        `json:"statements,omitempty"`
	AttemptCount int           `json:"attempt_count"`
	LastOutcome  Outcome       `json:"last_outcome,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	ArchivedAt   time.Time     `json:"archived_at"`
}

// newArchivedOperation builds an archive row from an evicted operation and a
// consistent status snapshot.
func newArchivedOperation(op *Operation, st OperationStatus) ArchivedOperation {
	row := ArchivedOperation{
		ID:           op.ID,
		Kind:         op.Kind,
		RunID:        op.RunID,
		Priority:     op.Priority,
		Query:        op.Query,
		AttemptCount: st.AttemptCount,
		LastOutcome:  st.LastOutcome,
		LastError:    st.LastError,
		CreatedAt:    st.CreatedAt,
		ArchivedAt:   time.Now(),
	}

	if len(op.Parameters) > 0 {
		if b, err := json.Marshal(op.Parameters); err == nil {
			row.Parameters = string(b)
		}
	}
	if len(op.Batch) > 0 {
		if b, err := json.Marshal(op.Batch); err == nil {
			row.Statements = string(b)
		}
	}
	return row
}

// Archive mirrors evicted dead-letter operations into a local SQLite file so
// operator evidence survives process restarts. The in-memory dead-letter
// queue and the archive are independent: clearing one leaves the other
// intact.
type Archive struct {
	db   *sql.DB
	path string
}

// OpenArchive opens (creating if necessary) the archive database at path,
// enables WAL mode, and initializes the schema.
func OpenArchive(path string, busyTimeout time.Duration) (*Archive, error) {
	if path == "" {
		return nil, types.NewError(types.ARCHIVE_OPEN_FAILED, "archive path cannot be empty")
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d",
		path, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(types.ARCHIVE_OPEN_FAILED,
			"failed to open archive database", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, types.WrapError(types.ARCHIVE_OPEN_FAILED,
			"failed to ping archive database", err)
	}
	if _, err := db.ExecContext(ctx, archiveSchema); err != nil {
		db.Close()
		return nil, types.WrapError(types.ARCHIVE_OPEN_FAILED,
			"failed to initialize archive schema", err)
	}

	return &Archive{db: db, path: path}, nil
}

// Insert writes or refreshes an archive row. An operation that is requeued
// and dead-lettered again replaces its previous row.
func (a *Archive) Insert(ctx context.Context, row ArchivedOperation) error {
	query := `
		INSERT OR REPLACE INTO dead_letter_operations (
			id, kind, run_id, priority, query, parameters, statements,
			attempt_count, last_outcome, last_error, created_at, archived_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := a.db.ExecContext(
		ctx, query,
		row.ID.String(),
		string(row.Kind),
		row.RunID,
		int(row.Priority),
		row.Query,
		row.Parameters,
		row.Statements,
		row.AttemptCount,
		string(row.LastOutcome),
		row.LastError,
		row.CreatedAt,
		row.ArchivedAt,
	)
	if err != nil {
		return types.WrapError(types.ARCHIVE_WRITE_FAILED,
			"failed to archive dead-letter operation", err)
	}
	return nil
}

// List returns archive rows newest first, up to limit (everything when
// limit <= 0).
func (a *Archive) List(ctx context.Context, limit int) ([]ArchivedOperation, error) {
	query := `
		SELECT id, kind, run_id, priority, query, parameters, statements,
		       attempt_count, last_outcome, last_error, created_at, archived_at
		FROM dead_letter_operations
		ORDER BY archived_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.WrapError(types.ARCHIVE_QUERY_FAILED,
			"failed to query dead-letter archive", err)
	}
	defer rows.Close()

	var out []ArchivedOperation
	for rows.Next() {
		var (
			row      ArchivedOperation
			id       string
			kind     string
			priority int
			outcome  string
		)
		if err := rows.Scan(
			&id, &kind, &row.RunID, &priority, &row.Query,
			&row.Parameters, &row.Statements, &row.AttemptCount,
			&outcome, &row.LastError, &row.CreatedAt, &row.ArchivedAt,
		); err != nil {
			return nil, types.WrapError(types.ARCHIVE_QUERY_FAILED,
				"failed to scan dead-letter archive row", err)
		}
		row.ID = types.ID(id)
		row.Kind = OperationKind(kind)
		row.Priority = Priority(priority)
		row.LastOutcome = Outcome(outcome)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.ARCHIVE_QUERY_FAILED,
			"failed to iterate dead-letter archive rows", err)
	}
	return out, nil
}

// Count returns the number of archived operations.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM dead_letter_operations").Scan(&n)
	if err != nil {
		return 0, types.WrapError(types.ARCHIVE_QUERY_FAILED,
			"failed to count dead-letter archive rows", err)
	}
	return n, nil
}

// Path returns the archive database file path.
func (a *Archive) Path() string {
	return a.path
}

// Close closes the archive database.
func (a *Archive) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
