package corpus

import (
	"context"
	"fmt"
	iofs "io/fs"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// DirectorySource reads documents matching include patterns under a root directory.
type DirectorySource struct {
	root    string
	include []string
}

// NewDirectorySource validates root and the include patterns.
func NewDirectorySource(root string, include []string) (*DirectorySource, error) {
	if err := validatePatterns(include); err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("corpus directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus directory: %s is not a directory", root)
	}
	return &DirectorySource{root: root, include: includeOrDefault(include)}, nil
}

// Root returns the directory being read.
func (d *DirectorySource) Root() string {
	return d.root
}

// Name describes the source for logs.
func (d *DirectorySource) Name() string {
	return "directory:" + d.root
}

// Documents returns every matching file, sorted by path.
func (d *DirectorySource) Documents(ctx context.Context) ([]RawDocument, error) {
	fsys := os.DirFS(d.root)
	seen := make(map[string]struct{})
	var paths []string

	for _, pattern := range d.include {
		err := doublestar.GlobWalk(fsys, pattern, func(p string, entry iofs.DirEntry) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if entry.IsDir() {
				return nil
			}
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				paths = append(paths, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", pattern, err)
		}
	}
	sort.Strings(paths)

	docs := make([]RawDocument, 0, len(paths))
	for _, p := range paths {
		body, err := iofs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		docs = append(docs, RawDocument{Path: p, Body: body})
	}
	return docs, nil
}

// Matches reports whether a path relative to the root is part of the corpus.
func (d *DirectorySource) Matches(rel string) bool {
	return matchesAny(d.include, rel)
}
