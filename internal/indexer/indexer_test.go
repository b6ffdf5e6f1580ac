package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/madzarm/ccsearch/internal/config"
	"github.com/madzarm/ccsearch/internal/embed"
	"github.com/madzarm/ccsearch/internal/store"
)

// countingEmbedder records how many texts it embedded so tests can
// verify embeddings are preserved or recomputed.
type countingEmbedder struct {
	calls int
}

func (e *countingEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	e.calls++
	return []float32{1, 0, 0, 0}, nil
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec, _ := e.Embed(ctx, "")
		out[i] = vec
	}
	return out, nil
}

func (e *countingEmbedder) Dim() int { return 4 }

type fixture struct {
	root     string
	store    *store.Store
	cfg      *config.Config
	embedder *countingEmbedder
	indexer  *Indexer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "projects")
	require.NoError(t, os.MkdirAll(root, 0755))

	st, err := store.Open(context.Background(), filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.TranscriptsRoot = root

	emb := &countingEmbedder{}
	return &fixture{
		root:     root,
		store:    st,
		cfg:      cfg,
		embedder: emb,
		indexer:  New(st, embed.Available(emb), cfg),
	}
}

// writeSession creates a transcript under an encoded project dir and
// pins its mtime so staleness checks are deterministic.
func (f *fixture) writeSession(t *testing.T, id, text string, mtime time.Time) string {
	t.Helper()
	projDir := filepath.Join(f.root, "-home-u-proj")
	require.NoError(t, os.MkdirAll(projDir, 0755))

	path := filepath.Join(projDir, id+".jsonl")
	line := fmt.Sprintf(
		`{"type":"user","sessionId":%q,"cwd":"/home/u/proj","timestamp":"2025-06-01T10:00:00Z","message":{"role":"user","content":%q}}`,
		id, text)
	require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func (f *fixture) reconcile(t *testing.T, opts Options) *Stats {
	t.Helper()
	stats, err := f.indexer.Reconcile(context.Background(), opts)
	require.NoError(t, err)
	return stats
}

func TestReconcile_IndexesNewSessions(t *testing.T) {
	f := newFixture(t)
	base := time.Now().Add(-time.Hour)
	f.writeSession(t, "sess-1", "implement JWT authentication", base)
	f.writeSession(t, "sess-2", "tweak the button styling", base)

	stats := f.reconcile(t, Options{})
	require.Equal(t, 2, stats.Indexed)
	require.Zero(t, stats.Deleted)

	rec, err := f.store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "/home/u/proj", rec.Project)

	has, err := f.store.HasEmbedding(context.Background(), "sess-1")
	require.NoError(t, err)
	require.True(t, has)
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "sess-1", "implement JWT authentication", time.Now().Add(-time.Hour))

	first := f.reconcile(t, Options{})
	require.Equal(t, 1, first.Indexed)

	second := f.reconcile(t, Options{})
	require.Zero(t, second.Indexed)
	require.Equal(t, 1, second.Skipped)
}

func TestReconcile_DetectsAppendedContent(t *testing.T) {
	f := newFixture(t)
	base := time.Now().Add(-2 * time.Hour)
	f.writeSession(t, "sess-1", "implement JWT authentication", base)
	f.reconcile(t, Options{})

	// Appending a message changes size, mtime, and content hash.
	f.writeSession(t, "sess-1", "implement JWT authentication plus refresh tokens", base.Add(time.Hour))

	var seen []string
	stats := f.reconcile(t, Options{Observer: func(ev Event) {
		if ev.Phase == "index" {
			seen = append(seen, ev.Current)
		}
	}})
	require.Equal(t, 1, stats.Indexed)
	require.Equal(t, []string{"sess-1"}, seen)

	rec, err := f.store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Contains(t, rec.Text, "refresh tokens")
}

func TestReconcile_MtimeTouchPreservesEmbedding(t *testing.T) {
	f := newFixture(t)
	base := time.Now().Add(-2 * time.Hour)
	path := f.writeSession(t, "sess-1", "implement JWT authentication", base)
	f.reconcile(t, Options{})
	embedsAfterFirst := f.embedder.calls

	// Touch mtime without changing content.
	require.NoError(t, os.Chtimes(path, base.Add(time.Hour), base.Add(time.Hour)))

	stats := f.reconcile(t, Options{})
	require.Equal(t, 1, stats.Touched)
	require.Zero(t, stats.Indexed)
	require.Equal(t, embedsAfterFirst, f.embedder.calls, "unchanged content must not re-embed")

	fs, err := f.store.FileStateByPath(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, base.Add(time.Hour).Unix(), fs.FileMtime)

	has, err := f.store.HasEmbedding(context.Background(), "sess-1")
	require.NoError(t, err)
	require.True(t, has)
}

func TestReconcile_DeletesOrphans(t *testing.T) {
	f := newFixture(t)
	path := f.writeSession(t, "sess-1", "implement JWT authentication", time.Now().Add(-time.Hour))
	f.reconcile(t, Options{})

	require.NoError(t, os.Remove(path))
	stats := f.reconcile(t, Options{})
	require.Equal(t, 1, stats.Deleted)

	rec, err := f.store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Nil(t, rec)

	hits, err := f.store.SearchFTS(context.Background(), `"authentication"`, store.Filter{}, 10)
	require.NoError(t, err)
	require.Empty(t, hits)

	has, err := f.store.HasEmbedding(context.Background(), "sess-1")
	require.NoError(t, err)
	require.False(t, has)
}

func TestReconcile_ForceReindexesEverything(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "sess-1", "implement JWT authentication", time.Now().Add(-time.Hour))
	f.reconcile(t, Options{})

	stats := f.reconcile(t, Options{Force: true})
	require.Equal(t, 1, stats.Indexed)
	require.Zero(t, stats.Skipped)
}

func TestReconcile_SkipsEmptyTranscripts(t *testing.T) {
	f := newFixture(t)
	projDir := filepath.Join(f.root, "-home-u-proj")
	require.NoError(t, os.MkdirAll(projDir, 0755))
	path := filepath.Join(projDir, "empty-1.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"file-history-snapshot"}`+"\n"), 0644))

	stats := f.reconcile(t, Options{})
	require.Equal(t, 1, stats.Empty)
	require.Zero(t, stats.Indexed)

	rec, err := f.store.Get(context.Background(), "empty-1")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestReconcile_SkipsAgentTranscripts(t *testing.T) {
	f := newFixture(t)
	projDir := filepath.Join(f.root, "-home-u-proj")
	require.NoError(t, os.MkdirAll(projDir, 0755))
	line := `{"type":"user","sessionId":"agent-x","message":{"role":"user","content":"subagent work item"}}`
	require.NoError(t, os.WriteFile(filepath.Join(projDir, "agent-x.jsonl"), []byte(line+"\n"), 0644))

	stats := f.reconcile(t, Options{})
	require.Zero(t, stats.Indexed)
}

func TestReconcile_LexicalOnlyWithoutEmbedder(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "sess-1", "implement JWT authentication", time.Now().Add(-time.Hour))

	ix := New(f.store, embed.Unavailable("no model"), f.cfg)
	stats, err := ix.Reconcile(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Indexed)

	has, err := f.store.HasEmbedding(context.Background(), "sess-1")
	require.NoError(t, err)
	require.False(t, has)

	// FTS still works in lexical-only mode.
	hits, err := f.store.SearchFTS(context.Background(), `"authentication"`, store.Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestReconcile_EnrichesFromSessionIndex(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "sess-1", "implement JWT authentication", time.Now().Add(-time.Hour))

	sidecar := `{"entries":[{"sessionId":"sess-1","summary":"JWT auth work","slug":"jwt-auth","gitBranch":"feature/auth"}]}`
	require.NoError(t, os.WriteFile(
		filepath.Join(f.root, "-home-u-proj", "sessions-index.json"), []byte(sidecar), 0644))

	f.reconcile(t, Options{})

	rec, err := f.store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, "JWT auth work", rec.Summary)
	require.Equal(t, "jwt-auth", rec.Slug)
	require.Equal(t, "feature/auth", rec.GitBranch)
}

func TestReconcile_Cancellation(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "sess-1", "implement JWT authentication", time.Now().Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.indexer.Reconcile(ctx, Options{})
	require.Error(t, err)
	require.True(t, IsCancelled(err))
}
