package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	_ "modernc.org/sqlite" // SQLite driver
)

// DB wraps the SQLite handle and associated metadata.
type DB struct {
	sql  *sql.DB
	path string
}

// Open initialises a SQLite database at the given path and returns a DB wrapper.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// a single writer keeps concurrent scans from tripping SQLITE_BUSY
	handle.SetMaxOpenConns(1)

	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if err := EnsurePerm0600(path); err != nil {
		handle.Close()
		return nil, err
	}

	return &DB{sql: handle, path: path}, nil
}

// Close releases the database resources.
func Close(d *DB) error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Path returns the database file location.
func (d *DB) Path() string {
	if d == nil {
		return ""
	}
	return d.path
}

// EnsurePerm0600 restricts the database file to its owner on Unix systems.
func EnsurePerm0600(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("chmod database: %w", err)
	}
	return nil
}

const createScanTables = `
CREATE TABLE IF NOT EXISTS last_scan (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	tab_id     INTEGER  NOT NULL,
	url        TEXT     NOT NULL,
	risk_score INTEGER  NOT NULL,
	risk_label TEXT     NOT NULL,
	record     TEXT     NOT NULL,
	scanned_at TEXT     NOT NULL
);

CREATE TABLE IF NOT EXISTS tab_scans (
	tab_id     INTEGER PRIMARY KEY,
	url        TEXT     NOT NULL,
	risk_score INTEGER  NOT NULL,
	risk_label TEXT     NOT NULL,
	record     TEXT     NOT NULL,
	scanned_at TEXT     NOT NULL
);
`

// Migrate ensures the scan tables exist.
func Migrate(d *DB) error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("database handle is nil")
	}
	if _, err := d.sql.Exec(createScanTables); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Vacuum compacts the database file.
func Vacuum(d *DB) error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("database handle is nil")
	}
	if _, err := d.sql.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum database: %w", err)
	}
	return nil
}
