// Package storage provides the key-value buckets that hold persisted
// emission history. One key per owner; values are UTF-8 JSON documents.
package storage

import (
	"context"
	"errors"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverFS       = "fs"
	DriverS3       = "s3"
	DriverPostgres = "postgres"
)

const historyKeyPrefix = "history:"

// ErrInvalidKey is returned for empty keys or keys that would escape a
// driver's namespace.
var ErrInvalidKey = errors.New("invalid storage key")

// Store is the persistence capability the history repository depends on.
// Get reports ok=false when the key has never been written.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Driver() string
	Close() error
}

// HistoryKey returns the bucket key holding ownerID's history.
func HistoryKey(ownerID string) string {
	return historyKeyPrefix + ownerID
}
