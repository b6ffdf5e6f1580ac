package search

import (
	"sort"

	"github.com/madzarm/ccsearch/internal/store"
)

// vecHit is one vector-leg candidate, distance ascending = better.
type vecHit struct {
	ID       string
	Distance float64
}

// fusedHit carries the RRF score and per-leg provenance for a session.
type fusedHit struct {
	ID        string
	Score     float64
	BM25Rank  int // 1-based; 0 when absent from the lexical leg
	VecRank   int // 1-based; 0 when absent from the vector leg
	BM25Score float64
	VecDist   float64
}

// fuse merges the two ranked legs with Reciprocal Rank Fusion:
//
//	score(id) = w_bm25/(k + rank_bm25) + w_vec/(k + rank_vec)
//
// Ids missing from a leg contribute nothing from it. Ties break on
// presence in both legs, then recency, then id, so the order is stable
// for identical inputs.
func fuse(bm25 []store.FTSHit, vec []vecHit, wBM25, wVec, k float64, lastMsgAt map[string]int64) []fusedHit {
	byID := make(map[string]*fusedHit, len(bm25)+len(vec))

	for i, hit := range bm25 {
		f := &fusedHit{ID: hit.ID, BM25Rank: i + 1, BM25Score: hit.Score}
		f.Score += wBM25 / (k + float64(i+1))
		byID[hit.ID] = f
	}

	for i, hit := range vec {
		f, ok := byID[hit.ID]
		if !ok {
			f = &fusedHit{ID: hit.ID}
			byID[hit.ID] = f
		}
		f.VecRank = i + 1
		f.VecDist = hit.Distance
		f.Score += wVec / (k + float64(i+1))
	}

	fused := make([]fusedHit, 0, len(byID))
	for _, f := range byID {
		fused = append(fused, *f)
	}

	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		aBoth := a.BM25Rank > 0 && a.VecRank > 0
		bBoth := b.BM25Rank > 0 && b.VecRank > 0
		if aBoth != bBoth {
			return aBoth
		}
		if lastMsgAt[a.ID] != lastMsgAt[b.ID] {
			return lastMsgAt[a.ID] > lastMsgAt[b.ID]
		}
		return a.ID < b.ID
	})

	return fused
}
