package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/saadjs/carbon-cli/internal/app"
)

// Config selects and configures a storage driver.
type Config struct {
	Driver      string
	SQLitePath  string
	FSRoot      string
	S3          S3Config
	PostgresDSN string
}

// Open builds the Store named by cfg.Driver. An empty driver means sqlite.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", DriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return nil, fmt.Errorf("sqlite path required")
		}
		if err := app.EnsureDir(cfg.SQLitePath); err != nil {
			return nil, err
		}
		return OpenSQLite(cfg.SQLitePath)
	case DriverMemory:
		return NewMemory(), nil
	case DriverFS:
		return NewFS(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Drivers lists the driver names Open accepts.
func Drivers() []string {
	return []string{DriverSQLite, DriverMemory, DriverFS, DriverS3, DriverPostgres}
}
