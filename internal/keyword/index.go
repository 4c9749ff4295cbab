// Package keyword provides full-text search over corpus chunks.
package keyword

import (
	"context"

	"github.com/hyperjump/kaiwa/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies matches in the slug-derived title field. Values <= 1 disable it.
	TitleBoost float64
	// PhraseBoost adds a boosted phrase clause so adjacent query terms rank higher.
	PhraseBoost float64
	// Fuzziness is the maximum edit distance for typo tolerance (0 disables, max 2).
	Fuzziness int
}

// Index is a full-text index over one generation of chunks.
type Index interface {
	// Rebuild indexes chunks into a fresh generation and swaps it in.
	Rebuild(ctx context.Context, chunks []*models.Chunk) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error)
	DocCount() (uint64, error)
	Close() error
}

// Result is a single keyword search hit.
type Result struct {
	Slug       string
	ChunkIndex int
	Score      float64
	Snippet    string
}
