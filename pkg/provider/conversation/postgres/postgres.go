// Package postgres provides a PostgreSQL-backed conversation.Store so that
// call history survives restarts and can be shared across instances.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lokv010/voiceagent-sub001/pkg/provider/conversation"
)

// Schema is the SQL DDL for the conversation_turns table. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS conversation_turns (
    id         BIGSERIAL   PRIMARY KEY,
    call_id    TEXT        NOT NULL,
    role       TEXT        NOT NULL,
    text       TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_conversation_turns_call ON conversation_turns(call_id, id);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a [conversation.Store] backed by a PostgreSQL database. All
// methods are safe for concurrent use.
type Store struct {
	db DB
}

// Compile-time interface check.
var _ conversation.Store = (*Store)(nil)

// NewStore creates a Store that uses the given database connection or pool.
// The caller is responsible for calling [Store.Migrate] to ensure the schema
// exists before issuing queries.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Connect establishes a connection pool to the PostgreSQL database at dsn,
// verifies connectivity, and runs the schema migration. The returned pool is
// handed to the Store and should be closed by the caller on shutdown.
func Connect(ctx context.Context, dsn string) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("turn store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("turn store: ping: %w", err)
	}

	s := NewStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// Migrate executes the [Schema] DDL against the database, creating the
// conversation_turns table and index if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("turn store: migrate: %w", err)
	}
	return nil
}

// Append implements [conversation.Store].
func (s *Store) Append(ctx context.Context, turn conversation.Turn) error {
	const q = `
		INSERT INTO conversation_turns (call_id, role, text, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.db.Exec(ctx, q, turn.CallID, string(turn.Role), turn.Text, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("turn store: append: %w", err)
	}
	return nil
}

// Recent implements [conversation.Store]. The newest turns are selected by
// insertion order and returned oldest first.
func (s *Store) Recent(ctx context.Context, callID string, limit int) ([]conversation.Turn, error) {
	q := `
		SELECT call_id, role, text, created_at
		FROM   conversation_turns
		WHERE  call_id = $1
		ORDER  BY id DESC`
	args := []any{callID}
	if limit > 0 {
		q += "\n\t\tLIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("turn store: recent: %w", err)
	}

	turns, err := collectTurns(rows)
	if err != nil {
		return nil, fmt.Errorf("turn store: recent: %w", err)
	}

	// Reverse from newest-first query order to chronological.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// collectTurns scans pgx rows into a slice of Turn values.
func collectTurns(rows pgx.Rows) ([]conversation.Turn, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (conversation.Turn, error) {
		var (
			t    conversation.Turn
			role string
		)
		if err := row.Scan(&t.CallID, &role, &t.Text, &t.CreatedAt); err != nil {
			return conversation.Turn{}, err
		}
		t.Role = conversation.Role(role)
		return t, nil
	})
}
