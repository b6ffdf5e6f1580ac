package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madzarm/ccsearch/internal/store"
)

func ids(fused []fusedHit) []string {
	out := make([]string, len(fused))
	for i, f := range fused {
		out[i] = f.ID
	}
	return out
}

func TestFuse_Basic(t *testing.T) {
	bm25 := []store.FTSHit{{ID: "a", Score: -5}, {ID: "b", Score: -3}, {ID: "c", Score: -1}}
	vec := []vecHit{{ID: "b", Distance: 0.1}, {ID: "d", Distance: 0.2}, {ID: "a", Distance: 0.3}}

	fused := fuse(bm25, vec, 1, 1, 60, nil)
	require.Len(t, fused, 4)
	require.ElementsMatch(t, []string{"a", "b", "c", "d"}, ids(fused))

	// b: ranks (2, 1); a: ranks (1, 3). b edges out a.
	require.Equal(t, "b", fused[0].ID)
	require.Equal(t, "a", fused[1].ID)
}

func TestFuse_Empty(t *testing.T) {
	require.Empty(t, fuse(nil, nil, 1, 1, 60, nil))
}

func TestFuse_BM25Only(t *testing.T) {
	bm25 := []store.FTSHit{{ID: "a", Score: -5}, {ID: "b", Score: -3}}
	fused := fuse(bm25, nil, 1, 1, 60, nil)
	require.Len(t, fused, 2)
	require.Equal(t, "a", fused[0].ID)
	require.Zero(t, fused[0].VecRank)
}

func TestFuse_Weights(t *testing.T) {
	bm25 := []store.FTSHit{{ID: "a", Score: -5}}
	vec := []vecHit{{ID: "b", Distance: 0.1}}

	fused := fuse(bm25, vec, 10, 1, 60, nil)
	require.Equal(t, "a", fused[0].ID)

	fused = fuse(bm25, vec, 1, 10, 60, nil)
	require.Equal(t, "b", fused[0].ID)
}

// Raising the vector weight can never demote a session that is absent
// from the lexical leg.
func TestFuse_VecWeightMonotonic(t *testing.T) {
	bm25 := []store.FTSHit{{ID: "a", Score: -5}, {ID: "b", Score: -4}}
	vec := []vecHit{{ID: "c", Distance: 0.1}}

	rankOf := func(fused []fusedHit, id string) int {
		for i, f := range fused {
			if f.ID == id {
				return i
			}
		}
		return -1
	}

	low := rankOf(fuse(bm25, vec, 1, 0.5, 60, nil), "c")
	high := rankOf(fuse(bm25, vec, 1, 2.0, 60, nil), "c")
	require.LessOrEqual(t, high, low)
}

// Five sessions ranked identically by both legs keep that order after
// fusion (tie-stability).
func TestFuse_TieStability(t *testing.T) {
	sessions := []string{"s1", "s2", "s3", "s4", "s5"}
	var bm25 []store.FTSHit
	var vec []vecHit
	for i, id := range sessions {
		bm25 = append(bm25, store.FTSHit{ID: id, Score: float64(-10 + i)})
		vec = append(vec, vecHit{ID: id, Distance: float64(i) / 10})
	}

	fused := fuse(bm25, vec, 1, 1, 60, nil)
	require.Equal(t, sessions, ids(fused))
}

// Equal scores break on presence in both legs, then recency, then id.
func TestFuse_TieBreaks(t *testing.T) {
	// a is rank 1 in bm25 only, b is rank 1 in vec only: same score.
	bm25 := []store.FTSHit{{ID: "a", Score: -5}}
	vec := []vecHit{{ID: "b", Distance: 0.1}}

	fused := fuse(bm25, vec, 1, 1, 60, map[string]int64{"a": 100, "b": 200})
	require.Equal(t, "b", fused[0].ID, "newer session wins the tie")

	fused = fuse(bm25, vec, 1, 1, 60, map[string]int64{"a": 100, "b": 100})
	require.Equal(t, "a", fused[0].ID, "id order breaks the remaining tie")
}
