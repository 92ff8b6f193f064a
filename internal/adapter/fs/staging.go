package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"knowflow/internal/port"
)

// TempStaging writes uploads to uniquely named temp files so loaders that need
// a path can read them. Every staged file is removed by its release func.
type TempStaging struct {
	dir string
}

var _ port.Staging = (*TempStaging)(nil)

// NewTempStaging stages under dir, or the OS temp dir when dir is empty.
func NewTempStaging(dir string) *TempStaging {
	return &TempStaging{dir: dir}
}

func (s *TempStaging) Stage(name string, data []byte) (string, func() error, error) {
	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return "", nil, fmt.Errorf("failed to create staging dir: %w", err)
		}
	}

	// Keep the extension so format detection by path still works.
	ext := strings.ToLower(filepath.Ext(name))
	f, err := os.CreateTemp(s.dir, "knowflow-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	path := f.Name()

	var once sync.Once
	var releaseErr error
	release := func() error {
		once.Do(func() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				releaseErr = err
			}
		})
		return releaseErr
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = release()
		return "", nil, fmt.Errorf("failed to write temp file for %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = release()
		return "", nil, fmt.Errorf("failed to close temp file for %s: %w", name, err)
	}

	return path, release, nil
}
