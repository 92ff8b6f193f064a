package usecase

import (
	"context"

	"knowflow/internal/domain"
)

// RetrieveUseCase runs raw similarity searches against the published index,
// without generation.
type RetrieveUseCase struct {
	ingest *IngestUseCase
}

func NewRetrieveUseCase(ingest *IngestUseCase) *RetrieveUseCase {
	return &RetrieveUseCase{ingest: ingest}
}

// Retrieve searches for chunks matching the query.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error) {
	r := u.ingest.Retriever()
	if r == nil {
		return nil, &domain.RetrievalError{Err: domain.ErrIndexNotReady}
	}
	return r.Search(ctx, query, topK)
}

// ScoredChunkResult is a simplified result for CLI output.
type ScoredChunkResult struct {
	Source string  `json:"source"`
	Page   int     `json:"page"`
	Start  int     `json:"start"`
	End    int     `json:"end"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}

// ToResults converts scored chunks to CLI output format.
func ToResults(chunks []domain.ScoredChunk) []ScoredChunkResult {
	results := make([]ScoredChunkResult, len(chunks))
	for i, c := range chunks {
		results[i] = ScoredChunkResult{
			Source: c.Chunk.Source,
			Page:   c.Chunk.Page,
			Start:  c.Chunk.Start,
			End:    c.Chunk.End,
			Score:  c.Score,
			Text:   c.Chunk.Text,
		}
	}
	return results
}
