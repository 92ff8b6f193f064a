package port

import (
	"context"

	"knowflow/internal/domain"
)

type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string
	RelPath string
	ModTime int64
	Size    int64
}

// Staging provides scoped temporary storage for upload bytes. The returned
// release func removes the staged copy and is safe to call more than once.
type Staging interface {
	Stage(name string, data []byte) (path string, release func() error, err error)
}

// DocumentLoader turns a staged file into page documents.
type DocumentLoader interface {
	// Load parses the file at path. name is the original upload name and is
	// used for metadata and format detection.
	Load(ctx context.Context, path, name string) ([]domain.Document, error)

	// SupportedExtensions returns the lower-case extensions handled.
	SupportedExtensions() []string
}
