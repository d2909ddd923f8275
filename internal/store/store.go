package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"autocron/internal/config"
)

// Store manages task, result, and settings persistence backed by SQLite. It
// is the only shared mutable resource between the host, the monitor, and the
// workers; every coordination primitive lives here.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the database at the configured location.
// A file that cannot be opened because it is corrupted (or is not a SQLite
// database at all) is removed and recreated once with default settings.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	store, err := openAtPath(dbPath)
	if err == nil {
		return store, nil
	}
	if !isCorruptionError(err) {
		return nil, err
	}

	if removeErr := removeDatabaseFiles(dbPath); removeErr != nil {
		return nil, fmt.Errorf("remove corrupt database: %w", removeErr)
	}
	store, err = openAtPath(dbPath)
	if err != nil {
		return nil, fmt.Errorf("recreate database: %w", err)
	}
	return store, nil
}

func openAtPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Recreate deletes the database file (including WAL siblings) and builds a
// fresh one with default settings. A sidecar flock serializes concurrent
// maintenance invocations; a held lock surfaces ErrMaintenanceLocked rather
// than blocking.
func Recreate(cfg *config.Config) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	lock := flock.New(dbPath + ".maintenance")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire maintenance lock: %w", err)
	}
	if !locked {
		return ErrMaintenanceLocked
	}
	defer func() { _ = lock.Unlock() }()

	if err := removeDatabaseFiles(dbPath); err != nil {
		return fmt.Errorf("remove database: %w", err)
	}

	store, err := openAtPath(dbPath)
	if err != nil {
		return fmt.Errorf("recreate database: %w", err)
	}
	return store.Close()
}

func removeDatabaseFiles(dbPath string) error {
	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// SQLite reports an unreadable file either through a result code or, from
// some driver layers, only through the message text.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSchemaMismatch) {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		switch coder.Code() {
		case sqliteCorruptCode, sqliteNotADBCode:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "database disk image is malformed")
}
