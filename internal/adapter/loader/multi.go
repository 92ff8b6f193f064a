package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"knowflow/internal/domain"
	"knowflow/internal/port"
)

// MultiLoader dispatches on the lower-cased extension of the upload name.
type MultiLoader struct {
	byExt map[string]port.DocumentLoader
}

var _ port.DocumentLoader = (*MultiLoader)(nil)

func NewMultiLoader(loaders ...port.DocumentLoader) *MultiLoader {
	m := &MultiLoader{byExt: make(map[string]port.DocumentLoader)}
	for _, l := range loaders {
		for _, ext := range l.SupportedExtensions() {
			m.byExt[ext] = l
		}
	}
	return m
}

// NewDefault handles PDF and plain text.
func NewDefault() *MultiLoader {
	return NewMultiLoader(NewPDFLoader(), NewTextLoader())
}

func (m *MultiLoader) SupportedExtensions() []string {
	exts := make([]string, 0, len(m.byExt))
	for ext := range m.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func (m *MultiLoader) Supports(name string) bool {
	_, ok := m.byExt[strings.ToLower(filepath.Ext(name))]
	return ok
}

func (m *MultiLoader) Load(ctx context.Context, path, name string) ([]domain.Document, error) {
	ext := strings.ToLower(filepath.Ext(name))
	l, ok := m.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, ext)
	}
	return l.Load(ctx, path, name)
}
