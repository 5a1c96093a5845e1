// Package reportstore persists finished fluency assessments in PostgreSQL.
//
// Each row keeps the request alongside the serialised outcome, exactly as it
// was returned to the caller, so a stored assessment can be served again
// byte-for-byte.
package reportstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/fluency/internal/fluency"
)

// Schema is the SQL DDL for the fluency_assessments table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS fluency_assessments (
    id             TEXT PRIMARY KEY,
    audio_uri      TEXT NOT NULL DEFAULT '',
    language_code  TEXT NOT NULL DEFAULT '',
    original_text  TEXT NOT NULL DEFAULT '',
    outcome        JSONB NOT NULL,
    failed         BOOLEAN NOT NULL DEFAULT false,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_fluency_assessments_created ON fluency_assessments(created_at DESC);
`

// Limits for [PostgresStore.ListRecent].
const (
	DefaultListLimit = 20
	MaxListLimit     = 500
)

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// Entry is one stored assessment.
type Entry struct {
	ID           string
	AudioURI     string
	LanguageCode string
	OriginalText string

	// Outcome is the report or error JSON as returned to the caller.
	Outcome json.RawMessage

	// Failed reports whether Outcome is an error object.
	Failed    bool
	CreatedAt time.Time
}

// PostgresStore is a [fluency.Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

var _ fluency.Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling [PostgresStore.Migrate]
// to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects a pool to dsn, verifies it with a ping and runs [Schema].
// The caller must Close the returned pool.
func Open(ctx context.Context, dsn string) (*PostgresStore, *pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("reportstore: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("reportstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("reportstore: ping: %w", err)
	}
	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// Migrate executes the [Schema] DDL against the database, creating the
// fluency_assessments table and index if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("reportstore: migrate: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("reportstore: ping: %w", err)
	}
	return nil
}

// Save inserts a finished assessment. Saving the same ID twice is an error.
func (s *PostgresStore) Save(ctx context.Context, rec fluency.Record) error {
	const query = `
		INSERT INTO fluency_assessments (
			id, audio_uri, language_code, original_text, outcome, failed, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, query,
		rec.ID, rec.Input.AudioURI, rec.Input.LanguageCode, rec.Input.OriginalText,
		[]byte(rec.Outcome.JSON()), rec.Outcome.Failed(), created,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("reportstore: assessment %q already exists", rec.ID)
		}
		return fmt.Errorf("reportstore: save %q: %w", rec.ID, err)
	}
	return nil
}

const selectColumns = `id, audio_uri, language_code, original_text, outcome, failed, created_at`

// Get retrieves an assessment by ID. It returns (nil, nil) if no assessment
// with the given ID exists.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Entry, error) {
	query := `SELECT ` + selectColumns + ` FROM fluency_assessments WHERE id = $1`

	var e Entry
	err := s.db.QueryRow(ctx, query, id).Scan(scanTargets(&e)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reportstore: get %q: %w", id, err)
	}
	return &e, nil
}

// ListRecent returns up to limit assessments, newest first. A limit <= 0
// selects [DefaultListLimit]; larger values are capped at [MaxListLimit].
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	query := `SELECT ` + selectColumns + ` FROM fluency_assessments ORDER BY created_at DESC, id DESC LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("reportstore: list: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(scanTargets(&e)...); err != nil {
			return nil, fmt.Errorf("reportstore: list scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reportstore: list: %w", err)
	}
	return entries, nil
}

// scanTargets returns the destinations for one row in [selectColumns] order.
func scanTargets(e *Entry) []any {
	return []any{
		&e.ID, &e.AudioURI, &e.LanguageCode, &e.OriginalText,
		(*[]byte)(&e.Outcome), &e.Failed, &e.CreatedAt,
	}
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
