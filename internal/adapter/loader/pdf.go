package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"knowflow/internal/domain"
)

// PDFLoader extracts plain text page by page. Pages without extractable text
// are skipped.
type PDFLoader struct{}

func NewPDFLoader() *PDFLoader {
	return &PDFLoader{}
}

func (l *PDFLoader) SupportedExtensions() []string {
	return []string{".pdf"}
}

func (l *PDFLoader) Load(ctx context.Context, path, name string) (docs []domain.Document, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		for _, fontName := range page.Fonts() {
			font := page.Font(fontName)
			fonts[fontName] = &font
		}

		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("failed to extract page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		docs = append(docs, domain.Document{
			ID:     documentID(name, i),
			Source: name,
			Page:   i,
			Text:   text,
		})
	}

	return docs, nil
}

func documentID(name string, page int) string {
	return fmt.Sprintf("%s#p%d", name, page)
}
