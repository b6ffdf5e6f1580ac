package embed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// testVocab is a minimal WordPiece vocabulary for exercising the
// tokenizer without model files.
var testVocab = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]", // 0..3
	"auth", "##entication", "bug", "fix", "the", // 4..8
	".", ",", "he", "##llo", // 9..12
}

func loadTestTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(testVocab, "\n")+"\n"), 0644))
	tok, err := LoadTokenizer(path)
	require.NoError(t, err)
	return tok
}

func TestTokenizer_WordPiece(t *testing.T) {
	tok := loadTestTokenizer(t)

	ids := tok.Tokenize("authentication bug")
	require.Equal(t, []int64{4, 5, 6}, ids)
}

func TestTokenizer_LowercasesAndStripsDiacritics(t *testing.T) {
	tok := loadTestTokenizer(t)

	require.Equal(t, tok.Tokenize("authentication"), tok.Tokenize("AUTHENTICATIÓN"))
	require.Equal(t, []int64{11, 12}, tok.Tokenize("Héllo"))
}

func TestTokenizer_SplitsPunctuation(t *testing.T) {
	tok := loadTestTokenizer(t)

	ids := tok.Tokenize("fix, the bug.")
	require.Equal(t, []int64{7, 10, 8, 6, 9}, ids)
}

func TestTokenizer_UnknownWord(t *testing.T) {
	tok := loadTestTokenizer(t)

	ids := tok.Tokenize("zzzquux")
	require.Equal(t, []int64{1}, ids)
}

func TestTokenizer_SpecialIDs(t *testing.T) {
	tok := loadTestTokenizer(t)
	require.Equal(t, int64(2), tok.CLS())
	require.Equal(t, int64(3), tok.SEP())
}

func TestWindowize(t *testing.T) {
	ids := make([]int64, 600)
	for i := range ids {
		ids[i] = int64(i)
	}

	windows := windowize(ids, 254, 64)
	require.Greater(t, len(windows), 1)

	// Every window respects the size cap and strides by size-stride.
	for i, w := range windows {
		require.LessOrEqual(t, len(w), 254)
		if i > 0 {
			require.Equal(t, windows[i-1][254-64], w[0])
		}
	}
	// The last window reaches the end of the input.
	last := windows[len(windows)-1]
	require.Equal(t, ids[len(ids)-1], last[len(last)-1])
}

func TestWindowize_ShortInput(t *testing.T) {
	windows := windowize([]int64{1, 2, 3}, 254, 64)
	require.Len(t, windows, 1)
	require.Equal(t, []int64{1, 2, 3}, windows[0])

	windows = windowize(nil, 254, 64)
	require.Len(t, windows, 1)
}

func TestL2Normalize(t *testing.T) {
	v := l2Normalize([]float32{3, 4})
	require.InDelta(t, 0.6, v[0], 1e-6)
	require.InDelta(t, 0.8, v[1], 1e-6)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	require.InDelta(t, 1.0, norm, 1e-3)

	zero := l2Normalize([]float32{0, 0})
	require.Equal(t, []float32{0, 0}, zero)
}

func TestMeanVectors(t *testing.T) {
	mean := meanVectors([][]float32{{1, 0}, {0, 1}})
	require.Equal(t, []float32{0.5, 0.5}, mean)
	require.Nil(t, meanVectors(nil))
}

func TestCapability(t *testing.T) {
	cap := Unavailable("model download failed")
	_, ok := cap.Get()
	require.False(t, ok)
	require.Equal(t, "model download failed", cap.Reason())
}
