// Package repository is the durable download store. Every state change is a
// named, individually atomic operation so the orchestrator never issues ad-hoc
// writes and every transition can be logged and resumed.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/dharsanguruparan/efolder-express/internal/database"
)

var (
	// ErrNotFound is returned for unknown request or document ids.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a row is no longer in the state
	// the transition starts from (for example a document already resolved).
	ErrInvalidTransition = errors.New("invalid state transition")
)

const (
	downloadsTable = "downloads"
	documentsTable = "documents"

	// insertChunk keeps bulk inserts below SQLite's bound parameter limit.
	insertChunk = 500
)

var (
	downloadColumns = []string{"request_id", "file_number", "started_at", "state"}
	documentColumns = []string{
		"id", "download_id", "document_id", "doc_type", "filename",
		"received_at", "source", "content_location", "errored",
	}
)

// Store wraps all SQL used by the orchestrator, the HTTP surface and the CLI.
// It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	qb  squirrel.StatementBuilderType
	now func() time.Time
}

// New constructs a Store for db, choosing placeholders for its dialect.
func New(db *database.DB) *Store {
	return NewWithDialect(db.DB, db.Dialect)
}

// NewWithDialect constructs a Store over a plain *sql.DB.
func NewWithDialect(db *sql.DB, dialect database.Dialect) *Store {
	var format squirrel.PlaceholderFormat = squirrel.Question
	if dialect == database.Postgres {
		format = squirrel.Dollar
	}
	return &Store{
		db:  db,
		qb:  squirrel.StatementBuilder.PlaceholderFormat(format),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exec(ctx context.Context, db execer, b squirrel.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// runInTx executes fn inside a transaction, rolling back when fn fails.
func (s *Store) runInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
