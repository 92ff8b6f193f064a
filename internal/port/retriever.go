package port

import (
	"context"

	"knowflow/internal/domain"
)

// Retriever defines the interface for searching indexed content.
type Retriever interface {
	// Search returns the top-k chunks matching the query, ordered by
	// descending similarity.
	Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error)
}
