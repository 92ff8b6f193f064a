package cli

import (
	"fmt"
	"os"
	"path/filepath"
)

// targetPath resolves the optional [path] argument against the root dir.
func targetPath(args []string) (string, error) {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return "", fmt.Errorf("invalid path: %w", err)
		}
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("path does not exist: %w", err)
	}
	return path, nil
}
