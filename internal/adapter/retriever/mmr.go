package retriever

import (
	"knowflow/internal/adapter/memstore"
	"knowflow/internal/port"
)

// MMRReranker implements Maximal Marginal Relevance for result diversification.
type MMRReranker struct {
	lambda   float64
	dedupSim float64
}

// NewMMRReranker creates a new MMR reranker. Candidates whose cosine
// similarity to an already selected vector exceeds dedupSim are dropped.
func NewMMRReranker(lambda, dedupSim float64) *MMRReranker {
	if lambda < 0 || lambda > 1 {
		lambda = 0.7
	}
	if dedupSim <= 0 {
		dedupSim = 1
	}
	return &MMRReranker{
		lambda:   lambda,
		dedupSim: dedupSim,
	}
}

func (r *MMRReranker) Lambda() float64 { return r.lambda }

// Rerank applies MMR to candidates drawn from index.
// MMR(c) = λ * relevance(c) - (1-λ) * max_similarity(c, selected)
func (r *MMRReranker) Rerank(index port.VectorIndex, candidates []port.VectorResult, k int) []port.VectorResult {
	if len(candidates) == 0 {
		return nil
	}

	if k > len(candidates) {
		k = len(candidates)
	}

	// Normalize scores to [0, 1] for fair comparison
	maxScore := candidates[0].Score
	for _, c := range candidates {
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}
	if maxScore <= 0 {
		maxScore = 1
	}

	selected := make([]port.VectorResult, 0, k)
	remaining := make([]port.VectorResult, len(candidates))
	copy(remaining, candidates)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestMMR := -1e9

		for i, candidate := range remaining {
			relevance := candidate.Score / maxScore

			maxSim := 0.0
			for _, sel := range selected {
				sim := memstore.CosineSimilarity(index.Vector(candidate.Position), index.Vector(sel.Position))
				if sim > maxSim {
					maxSim = sim
				}
			}

			if maxSim > r.dedupSim {
				continue
			}

			// Strict comparison keeps the earlier candidate on ties.
			mmr := r.lambda*relevance - (1-r.lambda)*maxSim
			if mmr > bestMMR {
				bestMMR = mmr
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			// All remaining candidates are near-duplicates
			break
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}
