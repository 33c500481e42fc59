// Package store persists the tracker snapshot as a single opaque blob.
package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gmsas95/meditrack/internal/config"
)

// SnapshotKey is the fixed key the tracker state lives under.
const SnapshotKey = "meditrack-data"

// Persister loads and saves the snapshot blob. Load returns (nil, nil) when
// nothing has been saved yet.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Close() error
}

// Open creates the backend selected by cfg.Backend.
func Open(cfg config.StorageConfig) (Persister, error) {
	switch cfg.Backend {
	case "", "badger":
		path := cfg.BadgerPath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "badger")
		}
		return OpenBadger(path)
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "meditrack.db")
		}
		return OpenSQLite(path)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
