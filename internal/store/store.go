// Package store implements C9: the persistent relational store backing the
// queue, sessions, and settings (spec §4.10), plus the C7 session-store
// operations and settings CRUD layered on top of it. Grounded verbatim on
// internal/store/store.go's WAL-mode sqlite DSN and migration-on-open
// pattern.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// PersistentStore is C9. Concurrent access is connection-per-caller with a
// single writer lane implied by WAL semantics (spec §4.10, §5, Design
// Notes).
type PersistentStore struct {
	db *sql.DB
}

func NewSQLite(dbPath string) (*PersistentStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	s := &PersistentStore{db: db}
	if err := s.runSQLiteMigrations(); err != nil {
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}
	return s, nil
}

func (s *PersistentStore) Close() error {
	return s.db.Close()
}
