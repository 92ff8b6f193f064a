package memstore

import (
	"fmt"
	"math"
	"sort"

	"knowflow/internal/domain"
	"knowflow/internal/port"
)

// VectorIndex is an immutable in-memory index of (chunk, vector) pairs.
// Search is brute-force cosine similarity; a rebuilt document set gets a new
// index rather than appending to an old one.
type VectorIndex struct {
	dimension int
	chunks    []domain.Chunk
	vectors   [][]float32
	norms     []float64
}

var _ port.VectorIndex = (*VectorIndex)(nil)

// NewVectorIndex copies chunks and vectors into a new index. Every vector must
// have the given dimension.
func NewVectorIndex(dimension int, chunks []domain.Chunk, vectors [][]float32) (*VectorIndex, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	if dimension <= 0 && len(vectors) > 0 {
		dimension = len(vectors[0])
	}

	idx := &VectorIndex{
		dimension: dimension,
		chunks:    make([]domain.Chunk, len(chunks)),
		vectors:   make([][]float32, len(vectors)),
		norms:     make([]float64, len(vectors)),
	}
	copy(idx.chunks, chunks)

	for i, vec := range vectors {
		if len(vec) != dimension {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
				domain.ErrDimensionMismatch, i, len(vec), dimension)
		}
		idx.vectors[i] = append([]float32(nil), vec...)
		idx.norms[i] = norm(vec)
	}

	return idx, nil
}

func (x *VectorIndex) Search(query []float32, k int) ([]port.VectorResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidInput, k)
	}
	if len(x.vectors) == 0 {
		return nil, nil
	}
	if len(query) != x.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrDimensionMismatch, len(query), x.dimension)
	}

	qn := norm(query)
	results := make([]port.VectorResult, len(x.vectors))
	for i, vec := range x.vectors {
		results[i] = port.VectorResult{Position: i, Score: cosine(query, qn, vec, x.norms[i])}
	}

	// Stable so equal scores keep insertion order.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (x *VectorIndex) Chunk(pos int) domain.Chunk {
	return x.chunks[pos]
}

func (x *VectorIndex) Vector(pos int) []float32 {
	return x.vectors[pos]
}

func (x *VectorIndex) Chunks() []domain.Chunk {
	out := make([]domain.Chunk, len(x.chunks))
	copy(out, x.chunks)
	return out
}

func (x *VectorIndex) Len() int {
	return len(x.chunks)
}

func (x *VectorIndex) Dimension() int {
	return x.dimension
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}

// CosineSimilarity compares two vectors of equal length.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	return cosine(a, norm(a), b, norm(b))
}
