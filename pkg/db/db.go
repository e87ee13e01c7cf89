package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Database owns the engine's sqlite handle. Orders and the risk snapshot
// share one file; the handle is tuned for a single writer (the lifecycle
// manager and the risk gate serialize their own writes) with WAL so API
// readers never block a settlement write.
type Database struct {
	DB *sql.DB
}

// Connection tuning applied to every new handle. busy_timeout covers the
// brief overlap between the expiry sweep and a settlement persisting at
// the same moment.
var enginePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// New opens (and creates if needed) the SQLite database at path and applies
// the engine's connection tuning.
func New(path string) (*Database, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	handle.SetMaxOpenConns(1)
	handle.SetConnMaxLifetime(time.Hour)

	for _, pragma := range enginePragmas {
		if _, err := handle.Exec(pragma); err != nil {
			_ = handle.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return &Database{DB: handle}, nil
}

// Close releases the underlying DB handle.
func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
