package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowflow/internal/domain"
)

func wordsDoc(n int) domain.Document {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	return domain.Document{ID: "doc1", Source: "words.pdf", Page: 2, Text: strings.Join(words, " ")}
}

func TestRecursiveChunkerSingleChunk(t *testing.T) {
	text := "Paris is the capital of France. It has a population of over 2 million."
	c := NewRecursiveChunker(1000, 100)

	chunks := c.Chunk(domain.Document{ID: "doc1", Source: "paris.pdf", Text: text})

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(text), chunks[0].End)
	assert.Equal(t, "paris.pdf", chunks[0].Source)
}

func TestRecursiveChunkerDeterministic(t *testing.T) {
	doc := wordsDoc(300)
	c := NewRecursiveChunker(120, 30)

	first := c.Chunk(doc)
	second := c.Chunk(doc)

	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestRecursiveChunkerBoundsAndOverlap(t *testing.T) {
	doc := wordsDoc(400)
	const size, overlap = 80, 20
	c := NewRecursiveChunker(size, overlap)

	chunks := c.Chunk(doc)
	require.Greater(t, len(chunks), 2)

	for i, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Text), size, "chunk %d too long", i)
		assert.Equal(t, doc.Text[chunk.Start:chunk.End], chunk.Text)
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, "doc1", chunk.DocID)
		assert.Equal(t, 2, chunk.Page)
	}

	for i := 0; i < len(chunks)-1; i++ {
		prev, next := chunks[i], chunks[i+1]

		require.Less(t, next.Start, prev.End, "chunks %d and %d do not overlap", i, i+1)
		require.Greater(t, next.Start, prev.Start)

		shared := doc.Text[next.Start:prev.End]
		assert.True(t, strings.HasSuffix(prev.Text, shared))
		assert.True(t, strings.HasPrefix(next.Text, shared))
		assert.LessOrEqual(t, utf8.RuneCountInString(shared), overlap)
	}
}

func TestRecursiveChunkerCoversAllText(t *testing.T) {
	doc := wordsDoc(250)
	chunks := NewRecursiveChunker(64, 0).Chunk(doc)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(doc.Text), chunks[len(chunks)-1].End)
	for i := 0; i < len(chunks)-1; i++ {
		gap := ""
		if chunks[i+1].Start > chunks[i].End {
			gap = doc.Text[chunks[i].End:chunks[i+1].Start]
		}
		assert.Empty(t, strings.TrimSpace(gap), "text lost between chunk %d and %d", i, i+1)
	}
}

func TestRecursiveChunkerPrefersParagraphs(t *testing.T) {
	p1 := "The first paragraph talks about rivers."
	p2 := "The second paragraph talks about lakes."
	doc := domain.Document{ID: "doc1", Text: p1 + "\n\n" + p2}

	chunks := NewRecursiveChunker(50, 10).Chunk(doc)

	require.Len(t, chunks, 2)
	assert.Equal(t, p1, chunks[0].Text)
	assert.Equal(t, p2, chunks[1].Text)
}

func TestRecursiveChunkerPrefersSentences(t *testing.T) {
	text := "Alpha beta gamma delta. Epsilon zeta eta theta. Iota kappa lambda mu."
	doc := domain.Document{ID: "doc1", Text: text}

	chunks := NewRecursiveChunker(30, 0).Chunk(doc)

	require.Len(t, chunks, 3)
	assert.Equal(t, "Alpha beta gamma delta.", chunks[0].Text)
	assert.Equal(t, "Epsilon zeta eta theta.", chunks[1].Text)
	assert.Equal(t, "Iota kappa lambda mu.", chunks[2].Text)
}

func TestRecursiveChunkerLongWord(t *testing.T) {
	doc := domain.Document{ID: "doc1", Text: strings.Repeat("x", 95)}

	chunks := NewRecursiveChunker(20, 5).Chunk(doc)

	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.Text), 20)
	}
	assert.Equal(t, len(doc.Text), chunks[len(chunks)-1].End)
}

func TestRecursiveChunkerMultibyte(t *testing.T) {
	doc := domain.Document{ID: "doc1", Text: strings.Repeat("é", 30)}

	chunks := NewRecursiveChunker(10, 2).Chunk(doc)

	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk.Text))
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Text), 10)
	}
}

func TestRecursiveChunkerEmptyContent(t *testing.T) {
	c := NewRecursiveChunker(100, 10)

	assert.Empty(t, c.Chunk(domain.Document{ID: "doc1"}))
	assert.Empty(t, c.Chunk(domain.Document{ID: "doc1", Text: " \n\n\t "}))
}

func TestNewRecursiveChunkerClamps(t *testing.T) {
	tests := []struct {
		name        string
		size, over  int
		wantSize    int
		wantOverlap int
	}{
		{"defaults", 0, -1, DefaultChunkSize, 0},
		{"overlap exceeds size", 100, 150, 100, 25},
		{"valid", 200, 20, 200, 20},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewRecursiveChunker(tc.size, tc.over)
			assert.Equal(t, tc.wantSize, c.ChunkSize())
			assert.Equal(t, tc.wantOverlap, c.Overlap())
		})
	}
}

func TestChunkIDUniqueness(t *testing.T) {
	chunks := NewRecursiveChunker(40, 10).Chunk(wordsDoc(200))

	ids := make(map[string]bool)
	for _, chunk := range chunks {
		assert.False(t, ids[chunk.ID], "duplicate chunk ID: %s", chunk.ID)
		ids[chunk.ID] = true
	}
}
