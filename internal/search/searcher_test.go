package search

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madzarm/ccsearch/internal/cerrors"
	"github.com/madzarm/ccsearch/internal/embed"
	"github.com/madzarm/ccsearch/internal/store"
)

// stubEmbedder maps keywords to fixed axes so similarity is easy to
// reason about in tests. First matching keyword wins, in order.
type stubAxis struct {
	word string
	vec  []float32
}

type stubEmbedder struct {
	axes []stubAxis
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	for _, axis := range e.axes {
		if strings.Contains(lower, axis.word) {
			return axis.vec, nil
		}
	}
	return []float32{0, 0, 0, 1}, nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *stubEmbedder) Dim() int { return 4 }

func setupCorpus(t *testing.T) (*store.Store, *stubEmbedder) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	emb := &stubEmbedder{axes: []stubAxis{
		{"authentication", []float32{1, 0, 0, 0}},
		{"styling", []float32{0, 1, 0, 0}},
	}}

	sessA := &store.SessionRecord{
		ID: "sess-a", Path: "/t/a.jsonl", Project: "/home/u/api",
		StartedAt: 1000, LastMsgAt: 2000, MsgCount: 6,
		ContentHash: "ha", FileMtime: 1, FileSize: 1,
		Text:    "implement JWT authentication for the API login endpoint",
		Preview: "implement JWT authentication",
	}
	sessB := &store.SessionRecord{
		ID: "sess-b", Path: "/t/b.jsonl", Project: "/home/u/web",
		StartedAt: 1500, LastMsgAt: 2500, MsgCount: 3,
		ContentHash: "hb", FileMtime: 1, FileSize: 1,
		Text:    "tweak the blue button styling on the landing page",
		Preview: "tweak the blue button styling",
	}

	vecA, err := emb.Embed(context.Background(), sessA.Text)
	require.NoError(t, err)
	vecB, err := emb.Embed(context.Background(), sessB.Text)
	require.NoError(t, err)
	require.NoError(t, st.Upsert(ctx, sessA, vecA))
	require.NoError(t, st.Upsert(ctx, sessB, vecB))

	return st, emb
}

func params(query string) Params {
	return Params{Query: query, Limit: 20, BM25Weight: 1, VecWeight: 1, RRFK: 60}
}

func TestSearch_RanksLexicalAndSemanticMatchFirst(t *testing.T) {
	st, emb := setupCorpus(t)
	searcher := New(st, embed.Available(emb), nil)

	results, err := searcher.Search(context.Background(), params("authentication bug"))
	require.NoError(t, err)
	require.NotEmpty(t, results)

	require.Equal(t, "sess-a", results[0].ID)
	require.NotNil(t, results[0].BM25Score)
	require.NotNil(t, results[0].VecDistance)
	for _, r := range results[1:] {
		require.Greater(t, results[0].FusedScore, r.FusedScore)
	}
}

func TestSearch_SnippetMarksQueryToken(t *testing.T) {
	st, emb := setupCorpus(t)
	searcher := New(st, embed.Available(emb), nil)

	results, err := searcher.Search(context.Background(), params("authentication"))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Contains(t, results[0].Snippet, MarkStart+"authentication"+MarkEnd)
}

func TestSearch_LexicalOnlyDegradation(t *testing.T) {
	st, _ := setupCorpus(t)
	searcher := New(st, embed.Unavailable("model missing"), nil)

	results, err := searcher.Search(context.Background(), params("authentication"))
	require.NoError(t, err)
	require.NotEmpty(t, results)

	require.Equal(t, "sess-a", results[0].ID)
	require.Nil(t, results[0].VecDistance)
	require.NotNil(t, results[0].BM25Score)
}

func TestSearch_PureSemanticHit(t *testing.T) {
	st, emb := setupCorpus(t)
	searcher := New(st, embed.Available(emb), nil)

	// "reauthentication" is not a token of any stored text, so the
	// lexical leg finds nothing, but the stub embeds it onto sess-a's
	// axis.
	results, err := searcher.Search(context.Background(), params("reauthentication"))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "sess-a", results[0].ID)
	require.Nil(t, results[0].BM25Score)
	require.NotNil(t, results[0].VecDistance)
	// No query token occurs in the text, so the snippet is the preview.
	require.Equal(t, "implement JWT authentication", results[0].Snippet)
}

func TestSearch_EmptyQueryInvalid(t *testing.T) {
	st, emb := setupCorpus(t)
	searcher := New(st, embed.Available(emb), nil)

	for _, q := range []string{"", "   ", `"()"`} {
		_, err := searcher.Search(context.Background(), params(q))
		require.Error(t, err)
		require.Equal(t, cerrors.KindQueryInvalid, cerrors.KindOf(err))
	}
}

func TestSearch_LimitZero(t *testing.T) {
	st, emb := setupCorpus(t)
	searcher := New(st, embed.Available(emb), nil)

	p := params("authentication")
	p.Limit = 0
	results, err := searcher.Search(context.Background(), p)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearch_ProjectFilter(t *testing.T) {
	st, emb := setupCorpus(t)
	searcher := New(st, embed.Available(emb), nil)

	p := params("authentication styling")
	p.ProjectPrefix = "/home/u/web"
	results, err := searcher.Search(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "sess-b", results[0].ID)
}

func TestSearch_SinceFilter(t *testing.T) {
	st, emb := setupCorpus(t)
	searcher := New(st, embed.Available(emb), nil)

	p := params("authentication styling")
	p.Since = 2200
	results, err := searcher.Search(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "sess-b", results[0].ID)
}

func TestSearch_Deterministic(t *testing.T) {
	st, emb := setupCorpus(t)
	searcher := New(st, embed.Available(emb), nil)

	first, err := searcher.Search(context.Background(), params("authentication styling"))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := searcher.Search(context.Background(), params("authentication styling"))
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}
