package port

import (
	"context"

	"knowflow/internal/domain"
)

// Embedder generates vector embeddings for text.
// Implementations must be deterministic for identical text and model.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns a slice of vectors, one per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension, or 0 when the
	// model size is only known after the first call.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorIndex is a read-only nearest-neighbour view over embedded chunks.
type VectorIndex interface {
	// Search finds the k nearest vectors to the query, best first.
	Search(query []float32, k int) ([]VectorResult, error)

	// Chunk returns the chunk stored at position pos.
	Chunk(pos int) domain.Chunk

	// Vector returns the embedding stored at position pos.
	Vector(pos int) []float32

	// Len returns the number of indexed chunks.
	Len() int

	// Dimension returns the vector dimension of the index.
	Dimension() int
}

// VectorResult represents a search result.
type VectorResult struct {
	Position int     // Insertion position in the index
	Score    float64 // Cosine similarity (higher is better)
}
