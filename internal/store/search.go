package store

import (
	"context"
	"fmt"
)

// FTSHit is a BM25 match. Score is the raw bm25() value, where more
// negative means more relevant.
type FTSHit struct {
	ID    string
	Score float64
}

// SearchFTS runs an FTS5 MATCH query and returns hits best-first.
// The match string must already be sanitized for FTS5 syntax.
func (s *Store) SearchFTS(ctx context.Context, match string, filter Filter, limit int) ([]FTSHit, error) {
	if limit <= 0 {
		return nil, nil
	}

	clause := ""
	args := []any{match}
	filter.where(&clause, &args)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.session_id, bm25(sessions_fts) AS score
		FROM sessions_fts f
		JOIN sessions s ON s.session_id = f.session_id
		WHERE sessions_fts MATCH ?`+clause+`
		ORDER BY score
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("FTS query failed: %w", err)
	}
	defer rows.Close()

	var hits []FTSHit
	for rows.Next() {
		var h FTSHit
		if err := rows.Scan(&h.ID, &h.Score); err != nil {
			return nil, fmt.Errorf("failed to scan FTS hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// EmbeddingRow pairs a session id with its stored vector.
type EmbeddingRow struct {
	ID     string
	Vector []float32
}

// Embeddings streams every stored vector matching the filter. The
// searcher computes cosine distance over these in memory; the corpus
// is session-sized, not web-sized.
func (s *Store) Embeddings(ctx context.Context, filter Filter) ([]EmbeddingRow, error) {
	clause := " WHERE 1=1"
	args := []any{}
	filter.where(&clause, &args)

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.session_id, e.embedding
		FROM session_embeddings e
		JOIN sessions s ON s.session_id = e.session_id`+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var result []EmbeddingRow
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("corrupt embedding for %s: %w", id, err)
		}
		result = append(result, EmbeddingRow{ID: id, Vector: vec})
	}
	return result, rows.Err()
}

// HasEmbedding reports whether a vector row exists for the session.
func (s *Store) HasEmbedding(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_embeddings WHERE session_id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check embedding: %w", err)
	}
	return n > 0, nil
}
