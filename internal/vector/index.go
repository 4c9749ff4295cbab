// Package vector provides nearest-neighbour search over chunk embeddings.
package vector

import (
	"context"
	"errors"

	"github.com/hyperjump/kaiwa/internal/models"
)

// ErrDimensionMismatch is returned when a vector's length differs from the index dimensions.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Index stores one generation of chunk embeddings and answers nearest-neighbour queries.
type Index interface {
	// Replace atomically swaps the whole chunk set. Searches see either the old
	// generation or the new one, never a mix.
	Replace(ctx context.Context, chunks []*models.Chunk) error
	// Search returns up to k hits ordered by ascending cosine distance.
	Search(ctx context.Context, query []float32, k int) ([]models.Hit, error)
	Size() int
	Dimensions() int
	Close() error
}
