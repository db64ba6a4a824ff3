package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource loads rows from the inventory table.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource connects to dsn and ensures the inventory table exists.
func NewPostgresSource(ctx context.Context, dsn string) (*PostgresSource, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &PostgresSource{pool: pool}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresSource) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresSource) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres not initialized")
	}
	return s.pool.Ping(ctx)
}

func (s *PostgresSource) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS inventory (
			id TEXT PRIMARY KEY,
			data JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Load reads one row. Missing rows return ErrNotFound.
func (s *PostgresSource) Load(ctx context.Context, id string) (*Row, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM inventory WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load inventory %s: %w", id, err)
	}

	row := &Row{ID: id, Cached: cachedAt()}
	if err := json.Unmarshal(raw, &row.Data); err != nil {
		return nil, fmt.Errorf("decode inventory %s: %w", id, err)
	}
	return row, nil
}

// Put upserts a row's data.
func (s *PostgresSource) Put(ctx context.Context, id string, data map[string]any) error {
	if id == "" {
		return fmt.Errorf("inventory id is required")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode inventory %s: %w", id, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO inventory (id, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`, id, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put inventory %s: %w", id, err)
	}
	return nil
}
