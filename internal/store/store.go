// Package store owns the durable index: session rows, the FTS5
// full-text index, vector rows, and meta, inside one SQLite file.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/madzarm/ccsearch/internal/cerrors"
)

// Store provides database operations over the index file.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the index store, verifies integrity, and runs
// any pending migrations.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}

	// WAL allows concurrent readers while a single writer commits.
	// modernc.org/sqlite uses _pragma=name(value) syntax.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has no use for more than one writing connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, path: dbPath}

	if err := s.checkIntegrity(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the store file.
func (s *Store) Path() string {
	return s.path
}

// checkIntegrity runs a quick integrity check and classifies failure
// as store corruption so the CLI can tell the user to delete the file.
func (s *Store) checkIntegrity(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&result); err != nil {
		return cerrors.Wrap(cerrors.KindStoreCorrupt,
			fmt.Errorf("integrity check failed: %w", err))
	}
	if result != "ok" {
		return cerrors.New(cerrors.KindStoreCorrupt,
			"index store failed integrity check (%s); delete %s and reindex", result, s.path)
	}
	return nil
}
