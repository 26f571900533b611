// Package store persists saved reports in a single SQLite table and keeps its
// schema current through an ordered list of additive migrations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("store: report not found")

// StoreError wraps any failure of the storage engine.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

var registerFuncs = sync.OnceValue(func() error {
	return sqlite.RegisterDeterministicScalarFunction("fold", 1, foldFunc)
})

// Store is a single-writer report store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the SQLite database at path and brings its schema
// up to date.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, wrap("open", errors.New("database path is empty"))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, wrap("ensure dir", err)
		}
	}
	if err := registerFuncs(); err != nil {
		return nil, wrap("register functions", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrap("open", err)
	}
	// Keep operations serialized and honor busy timeout.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, "pragma busy_timeout=5000"); err != nil {
		db.Close()
		return nil, wrap("set busy_timeout", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Check runs SQLite's quick_check and reports the first problem found.
func (s *Store) Check(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "pragma quick_check")
	if err != nil {
		return wrap("quick_check", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return wrap("quick_check", err)
		}
		if strings.TrimSpace(status) != "ok" {
			return wrap("quick_check", fmt.Errorf("reported %q", status))
		}
	}
	return wrap("quick_check", rows.Err())
}
