package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const defaultPostgresDSN = "postgres://localhost/carbon?sslmode=disable"

// Postgres stores buckets in a history_buckets table, one row per key.
type Postgres struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = defaultPostgresDSN
	}
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureBucketTable(ctx, sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return &Postgres{db: sqldb}, nil
}

func ensureBucketTable(ctx context.Context, sqldb *sql.DB) error {
	_, err := sqldb.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS history_buckets (
  key TEXT PRIMARY KEY,
  value JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	if err != nil {
		return fmt.Errorf("ensure history_buckets table: %w", err)
	}
	return nil
}

func (p *Postgres) Driver() string { return DriverPostgres }

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, fmt.Errorf("get: %w", ErrInvalidKey)
	}
	var value string
	err := p.db.QueryRowContext(ctx, `SELECT value::text FROM history_buckets WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get bucket %q: %w", key, err)
	}
	return value, true, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("set: %w", ErrInvalidKey)
	}
	_, err := p.db.ExecContext(ctx, `
INSERT INTO history_buckets(key, value, updated_at)
VALUES($1, $2::jsonb, now())
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, key, value)
	if err != nil {
		return fmt.Errorf("set bucket %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }
