package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowflow/internal/adapter/loader/loadertest"
	"knowflow/internal/domain"
)

func stage(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestTextLoader(t *testing.T) {
	text := "Paris is the capital of France."
	path := stage(t, "paris.txt", []byte(text))

	docs, err := NewTextLoader().Load(context.Background(), path, "docs/paris.txt")
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, text, docs[0].Text)
	assert.Equal(t, "docs/paris.txt", docs[0].Source)
	assert.Equal(t, 1, docs[0].Page)
	assert.Equal(t, "docs/paris.txt#p1", docs[0].ID)
}

func TestTextLoaderBlankAndInvalid(t *testing.T) {
	docs, err := NewTextLoader().Load(context.Background(), stage(t, "blank.txt", []byte("  \n")), "blank.txt")
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = NewTextLoader().Load(context.Background(), stage(t, "bin.txt", []byte{0xff, 0xfe, 0xfd}), "bin.txt")
	assert.Error(t, err)
}

func TestPDFLoader(t *testing.T) {
	path := stage(t, "paris.pdf", loadertest.PDF(
		"Paris is the capital of France.",
		"It has a population of over 2 million.",
	))

	docs, err := NewPDFLoader().Load(context.Background(), path, "paris.pdf")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	want := []string{"Paris is the capital of France.", "It has a population of over 2 million."}
	for i, doc := range docs {
		assert.Equal(t, i+1, doc.Page)
		assert.Equal(t, fmt.Sprintf("paris.pdf#p%d", i+1), doc.ID)
		assert.Equal(t, "paris.pdf", doc.Source)
		assert.Equal(t, want[i], strings.TrimSpace(doc.Text))
	}
}

func TestPDFLoaderSkipsBlankPages(t *testing.T) {
	path := stage(t, "gaps.pdf", loadertest.PDF("First page.", "", "Third page."))

	docs, err := NewDefault().Load(context.Background(), path, "gaps.pdf")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, 1, docs[0].Page)
	assert.Equal(t, 3, docs[1].Page)
	assert.Equal(t, "gaps.pdf#p3", docs[1].ID)
}

func TestPDFLoaderCorruptFile(t *testing.T) {
	path := stage(t, "broken.pdf", []byte("%PDF-1.4\nthis is not really a pdf"))

	_, err := NewPDFLoader().Load(context.Background(), path, "broken.pdf")
	assert.Error(t, err)
}

func TestMultiLoaderDispatch(t *testing.T) {
	m := NewDefault()
	ctx := context.Background()

	assert.Equal(t, []string{".markdown", ".md", ".pdf", ".txt"}, m.SupportedExtensions())
	assert.True(t, m.Supports("Notes.MD"))
	assert.False(t, m.Supports("image.png"))

	docs, err := m.Load(ctx, stage(t, "a.md", []byte("# Title")), "A.MD")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	_, err = m.Load(ctx, stage(t, "sheet.xlsx", []byte("x")), "sheet.xlsx")
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}
