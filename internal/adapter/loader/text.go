package loader

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"knowflow/internal/domain"
)

// TextLoader reads UTF-8 plain text and markdown as a single page.
type TextLoader struct{}

func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

func (l *TextLoader) SupportedExtensions() []string {
	return []string{".txt", ".md", ".markdown"}
}

func (l *TextLoader) Load(_ context.Context, path, name string) ([]domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s is not valid UTF-8 text", name)
	}

	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	return []domain.Document{{
		ID:     documentID(name, 1),
		Source: name,
		Page:   1,
		Text:   text,
	}}, nil
}
