package vector

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/hyperjump/kaiwa/internal/models"
)

// MemoryIndex is an in-memory vector index using brute-force cosine distance.
// The chunk set is an immutable snapshot swapped on Replace, so searches never
// block on a re-index.
type MemoryIndex struct {
	dimensions int
	snapshot   atomic.Pointer[generation]
}

type generation struct {
	chunks []*models.Chunk
	norms  []float64
}

// NewMemoryIndex creates an empty in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	m := &MemoryIndex{dimensions: dimensions}
	m.snapshot.Store(&generation{})
	return m, nil
}

// Replace validates and copies chunks into a new generation, then swaps it in.
func (m *MemoryIndex) Replace(ctx context.Context, chunks []*models.Chunk) error {
	gen, err := m.build(chunks)
	if err != nil {
		return err
	}
	m.snapshot.Store(gen)
	return nil
}

func (m *MemoryIndex) build(chunks []*models.Chunk) (*generation, error) {
	gen := &generation{
		chunks: make([]*models.Chunk, len(chunks)),
		norms:  make([]float64, len(chunks)),
	}
	for i, c := range chunks {
		if len(c.Embedding) != m.dimensions {
			return nil, fmt.Errorf("chunk %s#%d: got %d, expected %d: %w",
				c.Slug, c.Index, len(c.Embedding), m.dimensions, ErrDimensionMismatch)
		}
		cp := *c
		cp.Embedding = make([]float32, m.dimensions)
		copy(cp.Embedding, c.Embedding)
		gen.chunks[i] = &cp
		gen.norms[i] = L2Norm(cp.Embedding)
	}
	return gen, nil
}

// Search returns the k nearest chunks by cosine distance. Ties are broken by
// slug and then chunk index so results are deterministic. Returned chunks are
// shared with the index and must not be modified.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]models.Hit, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query: got %d, expected %d: %w", len(query), m.dimensions, ErrDimensionMismatch)
	}
	gen := m.snapshot.Load()
	if k <= 0 || len(gen.chunks) == 0 {
		return nil, nil
	}

	qn := L2Norm(query)
	hits := make([]models.Hit, len(gen.chunks))
	for i, c := range gen.chunks {
		hits[i] = models.Hit{Chunk: c, Distance: cosineDistance(query, c.Embedding, qn, gen.norms[i])}
	}
	SortHits(hits)
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// SortHits orders hits by ascending distance, then slug, then chunk index.
func SortHits(hits []models.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.Chunk.Slug != b.Chunk.Slug {
			return a.Chunk.Slug < b.Chunk.Slug
		}
		return a.Chunk.Index < b.Chunk.Index
	})
}

// Size returns the number of vectors in the current generation.
func (m *MemoryIndex) Size() int {
	return len(m.snapshot.Load().chunks)
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
