package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and configures a Store backend.
type Options struct {
	Driver  string
	DSN     string // sqlite path or postgres URL
	DataDir string
}

// Open returns the Store selected by opts.Driver. An empty sqlite DSN
// places the database file in DataDir.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return NewMemoryStore(MemoryOptions{DataDir: opts.DataDir}), nil
	case DriverSQLite:
		path := opts.DSN
		if path == "" {
			if opts.DataDir == "" {
				return nil, fmt.Errorf("sqlite store: a DSN or data dir is required")
			}
			if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			path = filepath.Join(opts.DataDir, "legacore.db")
		}
		return NewSQLiteStore(ctx, path)
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres store: a DSN is required")
		}
		return NewPostgresStore(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
