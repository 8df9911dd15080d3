package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/saadjs/carbon-cli/internal/db"
)

// SQLite stores buckets in the history_buckets table of the local database.
type SQLite struct {
	db     *sql.DB
	closer bool
}

// OpenSQLite opens path, applies migrations and owns the handle.
func OpenSQLite(path string) (*SQLite, error) {
	sqldb, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.ApplyMigrations(sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return &SQLite{db: sqldb, closer: true}, nil
}

// NewSQLite wraps an already migrated handle; Close leaves it open.
func NewSQLite(sqldb *sql.DB) *SQLite {
	return &SQLite{db: sqldb}
}

func (s *SQLite) Driver() string { return DriverSQLite }

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, fmt.Errorf("get: %w", ErrInvalidKey)
	}
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM history_buckets WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get bucket %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("set: %w", ErrInvalidKey)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO history_buckets(key, value, size_bytes, updated_at)
VALUES(?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, size_bytes=excluded.size_bytes, updated_at=excluded.updated_at
`, key, value, len(value))
	if err != nil {
		return fmt.Errorf("set bucket %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	if !s.closer {
		return nil
	}
	return s.db.Close()
}
