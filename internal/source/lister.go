// Package source enumerates the files delivered into the data folder.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirLister lists the regular files directly inside a directory.
// Subdirectories are not descended into.
type DirLister struct{}

// NewDirLister creates a DirLister.
func NewDirLister() *DirLister {
	return &DirLister{}
}

// List returns the paths of regular files in dir, sorted by name.
func (l *DirLister) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir: %w", err)
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}
