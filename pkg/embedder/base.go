// Package embedder provides interfaces for text embedding providers.
//
// Embeddings power the similarity half of memory retrieval; recency
// ordering is applied after the store returns candidates.
package embedder

import "context"

// Provider converts text into vector embeddings.
type Provider interface {
	// Embed converts a single text into an embedding vector.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple texts in one call where the backend
	// supports batching.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the vector size this provider produces.
	Dimensions() int

	// Close releases provider resources.
	Close() error
}
