package retriever

import (
	"context"
	"fmt"

	"knowflow/internal/domain"
	"knowflow/internal/port"
)

const DefaultTopK = 4

// SemanticRetriever answers similarity queries against one immutable index.
// It is bound to that index for its whole life; rebuilding documents yields a
// new retriever.
type SemanticRetriever struct {
	index    port.VectorIndex
	embedder port.Embedder
	mmr      *MMRReranker
	fetchK   int
	minScore float64
}

type Option func(*SemanticRetriever)

// WithMMR diversifies results by reranking fetchK nearest candidates.
func WithMMR(mmr *MMRReranker, fetchK int) Option {
	return func(r *SemanticRetriever) {
		r.mmr = mmr
		r.fetchK = fetchK
	}
}

// WithMinScore drops hits whose cosine score is below threshold.
func WithMinScore(threshold float64) Option {
	return func(r *SemanticRetriever) {
		r.minScore = threshold
	}
}

func NewSemanticRetriever(index port.VectorIndex, embedder port.Embedder, opts ...Option) *SemanticRetriever {
	r := &SemanticRetriever{
		index:    index,
		embedder: embedder,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *SemanticRetriever) Index() port.VectorIndex {
	return r.index
}

func (r *SemanticRetriever) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if r == nil || r.index == nil || r.embedder == nil {
		return nil, &domain.RetrievalError{Err: domain.ErrIndexNotReady}
	}
	if r.index.Len() == 0 {
		return nil, &domain.RetrievalError{Err: domain.ErrIndexEmpty}
	}
	if k <= 0 {
		k = DefaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, &domain.EmbeddingError{Err: fmt.Errorf("failed to embed query: %w", err)}
	}
	if len(embeddings) == 0 {
		return nil, &domain.EmbeddingError{Err: fmt.Errorf("embedding returned empty result")}
	}

	fetch := k
	if r.mmr != nil && r.fetchK > k {
		fetch = r.fetchK
	}

	results, err := r.index.Search(embeddings[0], fetch)
	if err != nil {
		return nil, &domain.RetrievalError{Err: fmt.Errorf("vector search failed: %w", err)}
	}

	if r.minScore > 0 {
		kept := results[:0]
		for _, res := range results {
			if res.Score >= r.minScore {
				kept = append(kept, res)
			}
		}
		results = kept
	}

	if r.mmr != nil {
		results = r.mmr.Rerank(r.index, results, k)
	} else if len(results) > k {
		results = results[:k]
	}

	chunks := make([]domain.ScoredChunk, 0, len(results))
	for _, result := range results {
		chunks = append(chunks, domain.ScoredChunk{
			Chunk: r.index.Chunk(result.Position),
			Score: result.Score,
		})
	}

	return chunks, nil
}
