// Package mock provides a deterministic embedder for tests and offline
// runs. Identical texts embed identically; different texts almost always
// differ. The vectors carry no semantic meaning.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder produces deterministic pseudo-embeddings from an FNV hash chain.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder. Dimensions below 1 default to 64.
func New(dimensions int) *Embedder {
	if dimensions < 1 {
		dimensions = 64
	}
	return &Embedder{dimensions: dimensions}
}

// Embed hashes the text into a unit-length vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float64, e.dimensions)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float64(int64(seed>>11))/float64(1<<52) - 1
		norm += vec[i] * vec[i]
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions returns the configured vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *Embedder) Close() error {
	return nil
}
