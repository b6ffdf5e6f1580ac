package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// Meta keys.
const (
	metaLastIndexAt       = "last_index_at"
	metaEmbedderAvailable = "embedder_available"
	metaModelName         = "model_name"
)

// SetMeta writes a key/value pair.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}

// GetMeta reads a value, returning "" when the key is absent.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %s: %w", key, err)
	}
	return value, nil
}

// MarkIndexed records the completion time of a reconciliation pass and
// whether the embedder was available for it.
func (s *Store) MarkIndexed(ctx context.Context, embedderAvailable bool, modelName string) error {
	if err := s.SetMeta(ctx, metaLastIndexAt, strconv.FormatInt(time.Now().Unix(), 10)); err != nil {
		return err
	}
	if err := s.SetMeta(ctx, metaEmbedderAvailable, strconv.FormatBool(embedderAvailable)); err != nil {
		return err
	}
	return s.SetMeta(ctx, metaModelName, modelName)
}

// LastIndexAt returns the unix time of the last completed pass, 0 if
// none.
func (s *Store) LastIndexAt(ctx context.Context) (int64, error) {
	value, err := s.GetMeta(ctx, metaLastIndexAt)
	if err != nil || value == "" {
		return 0, err
	}
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed last_index_at %q: %w", value, err)
	}
	return ts, nil
}
