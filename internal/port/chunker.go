package port

import "knowflow/internal/domain"

type Chunker interface {
	Chunk(doc domain.Document) []domain.Chunk
}
