package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"docfinder/internal/domain"
)

// ResolveFiles expands paths and doublestar patterns into regular files.
// Directories are skipped and duplicates are dropped; order follows the
// arguments, with matches of a single pattern sorted.
func ResolveFiles(patterns []string) ([]domain.FileRef, error) {
	seen := make(map[string]struct{})
	var files []domain.FileRef
	for _, p := range patterns {
		matches := []string{p}
		if hasMeta(p) {
			m, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", p, err)
			}
			if len(m) == 0 {
				return nil, fmt.Errorf("no files match %q", p)
			}
			sort.Strings(m)
			matches = m
		}
		for _, path := range matches {
			info, err := os.Stat(path)
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", path, err)
			}
			if info.IsDir() {
				continue
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return nil, err
			}
			if _, ok := seen[abs]; ok {
				continue
			}
			seen[abs] = struct{}{}
			files = append(files, domain.FileRef{Path: path, Name: filepath.Base(path), Size: info.Size()})
		}
	}
	if len(files) == 0 {
		return nil, ErrEmptyBatch
	}
	return files, nil
}

func hasMeta(p string) bool {
	for _, c := range p {
		switch c {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
