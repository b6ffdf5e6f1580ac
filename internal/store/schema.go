package store

import (
	"context"
	"fmt"
	"strconv"
)

// SchemaVersion is the schema this build writes. Opening a store with
// a newer version refuses to run rather than risk corrupting it.
const SchemaVersion = 1

const schemaV1 = `
-- Session metadata, one row per transcript file
CREATE TABLE IF NOT EXISTS sessions (
	session_id   TEXT PRIMARY KEY,
	path         TEXT NOT NULL UNIQUE,
	project      TEXT,
	started_at   INTEGER NOT NULL,
	last_msg_at  INTEGER NOT NULL,
	msg_count    INTEGER NOT NULL,
	file_mtime   INTEGER NOT NULL,
	file_size    INTEGER NOT NULL,
	content_hash TEXT NOT NULL,
	text         TEXT NOT NULL,
	preview      TEXT NOT NULL DEFAULT '',
	summary      TEXT,
	slug         TEXT,
	git_branch   TEXT,
	indexed_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_last_msg ON sessions(last_msg_at);
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project);

-- FTS5 index for BM25 keyword search
CREATE VIRTUAL TABLE IF NOT EXISTS sessions_fts USING fts5(
	session_id UNINDEXED,
	text,
	project,
	preview,
	tokenize="unicode61 remove_diacritics 2"
);

-- Vector rows: 384 little-endian float32s per session
CREATE TABLE IF NOT EXISTS session_embeddings (
	session_id TEXT PRIMARY KEY,
	dim        INTEGER NOT NULL,
	embedding  BLOB NOT NULL
);

-- Singleton key/value metadata
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// migration is a single forward-only schema step.
type migration struct {
	version int
	sql     string
}

func migrations() []migration {
	return []migration{
		{version: 1, sql: schemaV1},
	}
}

// migrate brings the schema up to SchemaVersion inside a single
// transaction, or refuses when the store was written by newer code.
func (s *Store) migrate(ctx context.Context) error {
	current, err := s.schemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if current > SchemaVersion {
		return fmt.Errorf("index store schema version %d is newer than supported version %d; upgrade ccsearch", current, SchemaVersion)
	}
	if current == SchemaVersion {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range migrations() {
		if m.version <= current {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration v%d failed: %w", m.version, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(SchemaVersion)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// schemaVersion reads the stored schema version, 0 for a fresh file.
func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'meta'`).Scan(&name)
	if err != nil {
		return 0, nil
	}

	var value string
	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&value)
	if err != nil {
		return 0, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("malformed schema_version %q: %w", value, err)
	}
	return v, nil
}
