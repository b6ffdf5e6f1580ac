package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SessionRecord is a fully materialized session row.
type SessionRecord struct {
	ID          string
	Path        string
	Project     string // empty when the transcript carried no cwd
	StartedAt   int64
	LastMsgAt   int64
	MsgCount    int
	FileMtime   int64
	FileSize    int64
	ContentHash string
	Text        string
	Preview     string
	Summary     string
	Slug        string
	GitBranch   string
}

// FileState is the cheap staleness fingerprint kept per session.
type FileState struct {
	ID          string
	Path        string
	FileMtime   int64
	FileSize    int64
	ContentHash string
}

// Filter narrows queries to recent sessions or a project subtree.
type Filter struct {
	Since         int64  // unix seconds; 0 disables
	ProjectPrefix string // path prefix; empty disables
}

func (f Filter) where(clause *string, args *[]any) {
	if f.Since > 0 {
		*clause += " AND s.last_msg_at >= ?"
		*args = append(*args, f.Since)
	}
	if f.ProjectPrefix != "" {
		*clause += " AND s.project LIKE ?"
		*args = append(*args, f.ProjectPrefix+"%")
	}
}

// Upsert replaces a session across all three tables in one
// transaction. A nil embedding leaves the session without a vector row
// (lexical-only mode).
func (s *Store) Upsert(ctx context.Context, rec *SessionRecord, embedding []float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteSessionTx(ctx, tx, rec.ID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (
			session_id, path, project, started_at, last_msg_at, msg_count,
			file_mtime, file_size, content_hash, text, preview,
			summary, slug, git_branch, indexed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Path, nullable(rec.Project), rec.StartedAt, rec.LastMsgAt, rec.MsgCount,
		rec.FileMtime, rec.FileSize, rec.ContentHash, rec.Text, rec.Preview,
		nullable(rec.Summary), nullable(rec.Slug), nullable(rec.GitBranch), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions_fts (session_id, text, project, preview)
		VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Text, rec.Project, rec.Preview)
	if err != nil {
		return fmt.Errorf("failed to insert FTS doc: %w", err)
	}

	if embedding != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_embeddings (session_id, dim, embedding)
			VALUES (?, ?, ?)`,
			rec.ID, len(embedding), encodeVector(embedding))
		if err != nil {
			return fmt.Errorf("failed to insert embedding: %w", err)
		}
	}

	return tx.Commit()
}

// Delete removes a session from all three tables.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteSessionTx(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteSessionTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions_fts WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete FTS doc: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_embeddings WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	return nil
}

// TouchFile refreshes the staleness fingerprint without re-indexing.
// Used when a transcript's mtime changed but its content hash did not,
// which preserves the stored embedding.
func (s *Store) TouchFile(ctx context.Context, id string, mtime, size int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET file_mtime = ?, file_size = ? WHERE session_id = ?`,
		mtime, size, id)
	if err != nil {
		return fmt.Errorf("failed to touch session file state: %w", err)
	}
	return nil
}

// FileStateByPath returns the staleness fingerprint for a transcript
// path, or nil when the path has never been indexed.
func (s *Store) FileStateByPath(ctx context.Context, path string) (*FileState, error) {
	var fs FileState
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, path, file_mtime, file_size, content_hash
		FROM sessions WHERE path = ?`, path).
		Scan(&fs.ID, &fs.Path, &fs.FileMtime, &fs.FileSize, &fs.ContentHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session by path: %w", err)
	}
	return &fs, nil
}

// AllFileStates returns the fingerprint of every stored session,
// keyed by id. The indexer diffs this against the filesystem.
func (s *Store) AllFileStates(ctx context.Context) (map[string]FileState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, path, file_mtime, file_size, content_hash FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	states := make(map[string]FileState)
	for rows.Next() {
		var fs FileState
		if err := rows.Scan(&fs.ID, &fs.Path, &fs.FileMtime, &fs.FileSize, &fs.ContentHash); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		states[fs.ID] = fs
	}
	return states, rows.Err()
}

// Get returns the full record for one session, or nil if absent.
func (s *Store) Get(ctx context.Context, id string) (*SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectSessions+` WHERE s.session_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanSession(rows)
}

// List enumerates sessions matching the filter, newest activity first.
func (s *Store) List(ctx context.Context, filter Filter, limit int) ([]SessionRecord, error) {
	clause := " WHERE 1=1"
	args := []any{}
	filter.where(&clause, &args)
	clause += " ORDER BY s.last_msg_at DESC"
	if limit > 0 {
		clause += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, selectSessions+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Count returns the number of indexed sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

const selectSessions = `
	SELECT s.session_id, s.path, s.project, s.started_at, s.last_msg_at, s.msg_count,
	       s.file_mtime, s.file_size, s.content_hash, s.text, s.preview,
	       s.summary, s.slug, s.git_branch
	FROM sessions s`

func scanSession(rows *sql.Rows) (*SessionRecord, error) {
	var rec SessionRecord
	var project, summary, slug, branch sql.NullString
	err := rows.Scan(&rec.ID, &rec.Path, &project, &rec.StartedAt, &rec.LastMsgAt, &rec.MsgCount,
		&rec.FileMtime, &rec.FileSize, &rec.ContentHash, &rec.Text, &rec.Preview,
		&summary, &slug, &branch)
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	rec.Project = project.String
	rec.Summary = summary.String
	rec.Slug = slug.String
	rec.GitBranch = branch.String
	return &rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
