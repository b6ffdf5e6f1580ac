// Package search implements the fused retrieval pipeline: BM25
// candidates, vector KNN, RRF merge, filtering, and snippet
// extraction.
package search

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/madzarm/ccsearch/internal/cerrors"
	"github.com/madzarm/ccsearch/internal/embed"
	"github.com/madzarm/ccsearch/internal/indexer"
	"github.com/madzarm/ccsearch/internal/store"
)

// jitInterval rate-limits just-in-time reconciliation before a query.
const jitInterval = 2 * time.Second

// candidateFactor oversizes each leg relative to the requested limit
// so fusion has material to work with.
const candidateFactor = 4

// Params configure one search request.
type Params struct {
	Query         string
	Limit         int
	Since         int64  // unix seconds; 0 disables
	ProjectPrefix string // path prefix filter; empty disables
	BM25Weight    float64
	VecWeight     float64
	RRFK          float64
	JIT           bool // reconcile the index before searching
}

// Result is one ranked session. BM25Score and VecDistance are nil when
// the session was absent from that leg.
type Result struct {
	ID          string   `json:"id"`
	Project     *string  `json:"project"`
	StartedAt   int64    `json:"started_at"`
	LastMsgAt   int64    `json:"last_msg_at"`
	MsgCount    int      `json:"msg_count"`
	Snippet     string   `json:"snippet"`
	BM25Score   *float64 `json:"bm25_score"`
	VecDistance *float64 `json:"vec_distance"`
	FusedScore  float64  `json:"fused_score"`

	// Extra display metadata, omitted from the wire schema.
	Summary   string `json:"-"`
	Preview   string `json:"-"`
	GitBranch string `json:"-"`
}

// Searcher runs queries against the store and embedder.
type Searcher struct {
	store    *store.Store
	embedder embed.Capability
	indexer  *indexer.Indexer // nil disables the JIT path
}

// New creates a searcher. Pass a nil indexer for read-only contexts
// (for example when another process holds the writer lock).
func New(st *store.Store, embedder embed.Capability, ix *indexer.Indexer) *Searcher {
	return &Searcher{store: st, embedder: embedder, indexer: ix}
}

// Search runs the full pipeline and returns ranked results.
func (s *Searcher) Search(ctx context.Context, p Params) ([]Result, error) {
	match, tokens := SanitizeQuery(p.Query)
	if match == "" {
		return nil, cerrors.New(cerrors.KindQueryInvalid, "query is empty after sanitization")
	}
	if p.Limit == 0 {
		return []Result{}, nil
	}
	if p.Limit < 0 {
		p.Limit = 20
	}
	if p.RRFK <= 0 {
		p.RRFK = 60
	}

	if p.JIT && s.indexer != nil {
		s.jitReconcile(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, cerrors.Wrap(cerrors.KindCancelled, err)
	}

	filter := store.Filter{Since: p.Since, ProjectPrefix: p.ProjectPrefix}
	candidates := candidateFactor * p.Limit

	// Lexical leg.
	bm25Hits, err := s.store.SearchFTS(ctx, match, filter, candidates)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, cerrors.Wrap(cerrors.KindCancelled, err)
	}

	// Vector leg, skipped entirely in lexical-only mode.
	var vecHits []vecHit
	if embedder, ok := s.embedder.Get(); ok {
		vecHits, err = s.vectorLeg(ctx, embedder, p.Query, filter, candidates)
		if err != nil {
			log.Printf("vector search failed, continuing lexical-only: %v", err)
			vecHits = nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, cerrors.Wrap(cerrors.KindCancelled, err)
	}

	// Fetch records up front; fusion tie-breaks need last_msg_at.
	records := make(map[string]*store.SessionRecord)
	lastMsgAt := make(map[string]int64)
	collect := func(id string) error {
		if _, ok := records[id]; ok {
			return nil
		}
		rec, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if rec != nil {
			records[id] = rec
			lastMsgAt[id] = rec.LastMsgAt
		}
		return nil
	}
	for _, h := range bm25Hits {
		if err := collect(h.ID); err != nil {
			return nil, err
		}
	}
	for _, h := range vecHits {
		if err := collect(h.ID); err != nil {
			return nil, err
		}
	}

	fused := fuse(bm25Hits, vecHits, p.BM25Weight, p.VecWeight, p.RRFK, lastMsgAt)
	if len(fused) > p.Limit {
		fused = fused[:p.Limit]
	}

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		rec, ok := records[f.ID]
		if !ok {
			continue
		}
		results = append(results, buildResult(f, rec, tokens))
	}
	return results, nil
}

// vectorLeg embeds the query and scans stored vectors for the nearest
// candidates by cosine distance.
func (s *Searcher) vectorLeg(ctx context.Context, embedder embed.Embedder, query string, filter store.Filter, limit int) ([]vecHit, error) {
	qv, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.Embeddings(ctx, filter)
	if err != nil {
		return nil, err
	}

	hits := make([]vecHit, 0, len(rows))
	for _, row := range rows {
		// Unit vectors: cosine distance is 1 minus the dot product.
		hits = append(hits, vecHit{ID: row.ID, Distance: 1 - dot(qv, row.Vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// jitReconcile runs a reconciliation pass unless one finished within
// the rate-limit window. Failures degrade to searching the existing
// index.
func (s *Searcher) jitReconcile(ctx context.Context) {
	last, err := s.store.LastIndexAt(ctx)
	if err == nil && last > 0 && time.Since(time.Unix(last, 0)) < jitInterval {
		return
	}
	if _, err := s.indexer.Reconcile(ctx, indexer.Options{}); err != nil {
		if indexer.IsCancelled(err) {
			return
		}
		log.Printf("JIT index failed, searching existing index: %v", err)
	}
}

func buildResult(f fusedHit, rec *store.SessionRecord, tokens []string) Result {
	r := Result{
		ID:         rec.ID,
		StartedAt:  rec.StartedAt,
		LastMsgAt:  rec.LastMsgAt,
		MsgCount:   rec.MsgCount,
		FusedScore: f.Score,
		Summary:    rec.Summary,
		Preview:    rec.Preview,
		GitBranch:  rec.GitBranch,
	}
	if rec.Project != "" {
		project := rec.Project
		r.Project = &project
	}
	if f.BM25Rank > 0 {
		score := f.BM25Score
		r.BM25Score = &score
	}
	if f.VecRank > 0 {
		dist := f.VecDist
		r.VecDistance = &dist
	}

	r.Snippet = ExtractSnippet(rec.Text, tokens)
	if r.Snippet == "" {
		// Pure-semantic hit: no query token occurs in the text.
		r.Snippet = rec.Preview
	}
	return r
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
