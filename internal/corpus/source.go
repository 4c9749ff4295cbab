// Package corpus turns a content source into embedded chunks and commits them
// to the vector and full-text indexes.
package corpus

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/hyperjump/kaiwa/internal/config"
)

// DefaultInclude selects the formats the extractor understands.
var DefaultInclude = []string{"**/*.md", "**/*.markdown", "**/*.txt", "**/*.pdf", "**/*.docx", "**/*.xlsx"}

// RawDocument is a file as read from a source. Path is relative to the source
// root and slash-separated.
type RawDocument struct {
	Path string
	Body []byte
}

// Source lists the documents of a corpus.
type Source interface {
	Documents(ctx context.Context) ([]RawDocument, error)
	// Name describes the source for logs.
	Name() string
}

// NewSource creates the source selected by cfg.Source.
func NewSource(ctx context.Context, cfg config.CorpusConfig) (Source, error) {
	switch cfg.Source {
	case "directory", "":
		return NewDirectorySource(cfg.Directory, cfg.Include)
	case "github":
		return NewGitHubSource(ctx, cfg.GitHub, cfg.Include)
	default:
		return nil, fmt.Errorf("unknown corpus source: %s (supported: directory, github)", cfg.Source)
	}
}

// Slug derives a document's identifier from its relative path: extension
// removed, lowercased, slash-separated.
func Slug(p string) string {
	p = strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "/")
	p = strings.TrimSuffix(p, path.Ext(p))
	return strings.ToLower(p)
}

func includeOrDefault(patterns []string) []string {
	if len(patterns) == 0 {
		return DefaultInclude
	}
	return patterns
}

func validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid include pattern: %s", p)
		}
	}
	return nil
}

func matchesAny(patterns []string, p string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, p); err == nil && ok {
			return true
		}
	}
	return false
}
