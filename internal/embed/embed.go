// Package embed produces unit-length sentence embeddings for session
// text and queries. The model is an optional capability: when it
// cannot be acquired or loaded, the rest of the system runs in
// lexical-only mode.
package embed

import (
	"context"
	"math"
)

// Dim is the embedding dimension of the sentence encoder.
const Dim = 384

// Embedder turns text into L2-normalized vectors of Dim float32s.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// Capability models embedder availability explicitly. Call sites must
// handle both states; a missing model is a mode, not an error.
type Capability struct {
	embedder Embedder
	reason   string
}

// Available wraps a working embedder.
func Available(e Embedder) Capability {
	return Capability{embedder: e}
}

// Unavailable records why no embedder could be constructed.
func Unavailable(reason string) Capability {
	return Capability{reason: reason}
}

// Get returns the embedder and whether one is available.
func (c Capability) Get() (Embedder, bool) {
	return c.embedder, c.embedder != nil
}

// Reason explains unavailability; empty when available.
func (c Capability) Reason() string {
	return c.reason
}

// l2Normalize scales v to unit length in place and returns it. A zero
// vector is returned unchanged.
func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// meanVectors averages a set of equal-length vectors.
func meanVectors(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	out := make([]float32, len(vecs[0]))
	for _, v := range vecs {
		for i, x := range v {
			out[i] += x
		}
	}
	n := float32(len(vecs))
	for i := range out {
		out[i] /= n
	}
	return out
}
