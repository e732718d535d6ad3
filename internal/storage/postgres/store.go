package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/bankline/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entities (
	kind       TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (kind, id)
)`

// Store implements storage.Cache backed by PostgreSQL.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ storage.Cache = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := New(db)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the cache table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create cache schema: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, kind storage.Kind, id string) ([]byte, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, `
		SELECT data
		FROM cache_entities
		WHERE kind = $1 AND id = $2
	`, string(kind), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) List(ctx context.Context, kind storage.Kind) ([]storage.Record, error) {
	records := make([]storage.Record, 0)
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, data
		FROM cache_entities
		WHERE kind = $1
		ORDER BY id
	`, string(kind))
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) Put(ctx context.Context, kind storage.Kind, id string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entities (kind, id, data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`, string(kind), id, string(data), s.now())
	return err
}

func (s *Store) Delete(ctx context.Context, kind storage.Kind, id string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM cache_entities
		WHERE kind = $1 AND id = $2
	`, string(kind), id)
	return err
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
