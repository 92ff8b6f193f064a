package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"knowflow/internal/domain"
)

const (
	DefaultChunkSize    = 5000
	DefaultChunkOverlap = 500
)

// DefaultSeparators are tried in order: paragraph, line, sentence, word, character.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", " ", ""}

// RecursiveChunker splits text on the largest natural boundary that keeps every
// piece within chunkSize runes, then merges pieces into overlapping chunks.
type RecursiveChunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

func NewRecursiveChunker(chunkSize, overlap int) *RecursiveChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &RecursiveChunker{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: DefaultSeparators,
	}
}

func (c *RecursiveChunker) ChunkSize() int { return c.chunkSize }

func (c *RecursiveChunker) Overlap() int { return c.overlap }

// piece is a byte span [start, end) of the source text holding n runes.
type piece struct {
	start, end, n int
}

func (c *RecursiveChunker) Chunk(doc domain.Document) []domain.Chunk {
	if strings.TrimSpace(doc.Text) == "" {
		return nil
	}

	pieces := c.split(doc.Text, 0, c.separators)

	var chunks []domain.Chunk
	emit := func(group []piece) {
		start, end := trimSpan(doc.Text, group[0].start, group[len(group)-1].end)
		if start >= end {
			return
		}
		// A tail made only of carried-over text adds nothing new.
		if n := len(chunks); n > 0 && end <= chunks[n-1].End {
			return
		}
		idx := len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:     generateChunkID(doc.ID, idx),
			DocID:  doc.ID,
			Source: doc.Source,
			Page:   doc.Page,
			Index:  idx,
			Start:  start,
			End:    end,
			Text:   doc.Text[start:end],
		})
	}

	var current []piece
	total := 0
	for _, p := range pieces {
		if total+p.n > c.chunkSize && len(current) > 0 {
			emit(current)

			// Keep trailing pieces worth at most overlap runes, and only as
			// many as still leave room for p.
			for len(current) > 0 && (total > c.overlap || total+p.n > c.chunkSize) {
				total -= current[0].n
				current = current[1:]
			}
		}
		current = append(current, p)
		total += p.n
	}
	if len(current) > 0 {
		emit(current)
	}

	return chunks
}

// split breaks text[...] (located at offset base of the source) into pieces of
// at most chunkSize runes. Separators stay attached to the preceding piece so
// the pieces tile the text exactly.
func (c *RecursiveChunker) split(text string, base int, separators []string) []piece {
	sep, rest := pickSeparator(text, separators)

	var parts []string
	if sep == "" {
		parts = splitRunes(text)
	} else {
		parts = splitKeepSeparator(text, sep)
	}

	var out []piece
	offset := base
	for _, part := range parts {
		n := utf8.RuneCountInString(part)
		if n <= c.chunkSize || len(rest) == 0 {
			out = append(out, piece{start: offset, end: offset + len(part), n: n})
		} else {
			out = append(out, c.split(part, offset, rest)...)
		}
		offset += len(part)
	}
	return out
}

// pickSeparator returns the first separator present in text (the empty
// separator always matches) and the finer separators after it.
func pickSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	return "", nil
}

func splitKeepSeparator(text, sep string) []string {
	var parts []string
	for {
		i := strings.Index(text, sep)
		if i < 0 {
			break
		}
		parts = append(parts, text[:i+len(sep)])
		text = text[i+len(sep):]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

func splitRunes(text string) []string {
	parts := make([]string, 0, len(text))
	for i, w := 0, 0; i < len(text); i += w {
		_, w = utf8.DecodeRuneInString(text[i:])
		parts = append(parts, text[i:i+w])
	}
	return parts
}

// trimSpan narrows [start, end) to exclude leading and trailing whitespace.
func trimSpan(text string, start, end int) (int, int) {
	for start < end {
		r, w := utf8.DecodeRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		start += w
	}
	for end > start {
		r, w := utf8.DecodeLastRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= w
	}
	return start, end
}

func generateChunkID(docID string, index int) string {
	data := fmt.Sprintf("%s:%d", docID, index)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
