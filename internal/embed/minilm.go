package embed

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// maxWindowTokens is the encoder's input limit, including the
	// [CLS] and [SEP] frame.
	maxWindowTokens = 256

	// windowStride is the token overlap step between session windows.
	windowStride = 64
)

var (
	ortOnce    sync.Once
	ortInitErr error
)

// initRuntime initializes the ONNX runtime environment once per
// process.
func initRuntime() error {
	ortOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// MiniLM runs the all-MiniLM-L6-v2 sentence encoder via ONNX Runtime.
type MiniLM struct {
	tokenizer *Tokenizer
	session   *ort.DynamicAdvancedSession

	// ONNX sessions are not safe for concurrent Run calls.
	mu sync.Mutex
}

// NewMiniLM loads the model and tokenizer from a model directory
// containing model.onnx and vocab.txt.
func NewMiniLM(modelDir string) (*MiniLM, error) {
	tokenizer, err := LoadTokenizer(filepath.Join(modelDir, "vocab.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("failed to initialize onnx runtime: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		filepath.Join(modelDir, "model.onnx"),
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load onnx model: %w", err)
	}

	return &MiniLM{tokenizer: tokenizer, session: session}, nil
}

// Close releases the ONNX session.
func (m *MiniLM) Close() error {
	if m.session != nil {
		return m.session.Destroy()
	}
	return nil
}

// Dim returns the embedding dimension.
func (m *MiniLM) Dim() int {
	return Dim
}

// Embed encodes a query as a single window, truncated to the
// encoder's input limit.
func (m *MiniLM) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := m.tokenizer.Tokenize(text)
	if len(ids) > maxWindowTokens-2 {
		ids = ids[:maxWindowTokens-2]
	}
	vec, err := m.runWindow(ids)
	if err != nil {
		return nil, err
	}
	return l2Normalize(vec), nil
}

// EmbedBatch encodes session texts. Each text is split into
// overlapping windows and the session vector is the normalized mean of
// the window vectors.
func (m *MiniLM) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := m.embedWindowed(text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// embedWindowed embeds every window of a long text and mean-pools.
func (m *MiniLM) embedWindowed(text string) ([]float32, error) {
	ids := m.tokenizer.Tokenize(text)
	windows := windowize(ids, maxWindowTokens-2, windowStride)

	vecs := make([][]float32, 0, len(windows))
	for _, w := range windows {
		vec, err := m.runWindow(w)
		if err != nil {
			return nil, err
		}
		vecs = append(vecs, l2Normalize(vec))
	}
	return l2Normalize(meanVectors(vecs)), nil
}

// runWindow executes one forward pass over [CLS] ids... [SEP] and
// mean-pools the last hidden state.
func (m *MiniLM) runWindow(ids []int64) ([]float32, error) {
	seqLen := len(ids) + 2
	inputIDs := make([]int64, 0, seqLen)
	inputIDs = append(inputIDs, m.tokenizer.CLS())
	inputIDs = append(inputIDs, ids...)
	inputIDs = append(inputIDs, m.tokenizer.SEP())

	attentionMask := make([]int64, seqLen)
	tokenTypeIDs := make([]int64, seqLen)
	for i := range attentionMask {
		attentionMask[i] = 1
	}

	shape := ort.NewShape(1, int64(seqLen))
	idsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typeTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	outTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(seqLen), Dim))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outTensor.Destroy()

	m.mu.Lock()
	err = m.session.Run(
		[]ort.Value{idsTensor, maskTensor, typeTensor},
		[]ort.Value{outTensor},
	)
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx inference failed: %w", err)
	}

	// Mean pool over token positions; every position is unpadded here.
	data := outTensor.GetData()
	pooled := make([]float32, Dim)
	for pos := 0; pos < seqLen; pos++ {
		offset := pos * Dim
		for j := 0; j < Dim; j++ {
			pooled[j] += data[offset+j]
		}
	}
	inv := 1.0 / float32(seqLen)
	for j := range pooled {
		pooled[j] *= inv
	}
	return pooled, nil
}

// windowize splits token ids into windows of at most size tokens,
// advancing by stride. An empty input yields one empty window so even
// blank text embeds deterministically.
func windowize(ids []int64, size, stride int) [][]int64 {
	if len(ids) <= size {
		return [][]int64{ids}
	}
	var windows [][]int64
	for start := 0; start < len(ids); start += size - stride {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		windows = append(windows, ids[start:end])
		if end == len(ids) {
			break
		}
	}
	return windows
}
