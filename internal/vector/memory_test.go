package vector

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/hyperjump/kaiwa/internal/models"
)

func chunk(slug string, idx int, v ...float32) *models.Chunk {
	return &models.Chunk{Slug: slug, Index: idx, Content: slug, Embedding: v}
}

func TestMemoryIndex_ReplaceSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	err = idx.Replace(ctx, []*models.Chunk{
		chunk("a", 0, 1, 0, 0),
		chunk("b", 0, 0.9, 0.1, 0),
		chunk("c", 0, 0, 1, 0),
	})
	if err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Chunk.Slug != "a" || hits[1].Chunk.Slug != "b" {
		t.Errorf("unexpected order: %s, %s", hits[0].Chunk.Slug, hits[1].Chunk.Slug)
	}
	if math.Abs(hits[0].Distance) > 1e-9 {
		t.Errorf("identical vector should have distance 0, got %f", hits[0].Distance)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Distance < hits[i-1].Distance {
			t.Errorf("hits not ascending at %d", i)
		}
	}
}

func TestMemoryIndex_TiesBrokenBySlugThenIndex(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Replace(ctx, []*models.Chunk{
		chunk("z", 0, 1, 0),
		chunk("m", 1, 1, 0),
		chunk("m", 0, 1, 0),
	})
	hits, _ := idx.Search(ctx, []float32{1, 0}, 10)
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	want := []struct {
		slug string
		idx  int
	}{{"m", 0}, {"m", 1}, {"z", 0}}
	for i, w := range want {
		if hits[i].Chunk.Slug != w.slug || hits[i].Chunk.Index != w.idx {
			t.Errorf("hit %d = %s#%d, want %s#%d", i, hits[i].Chunk.Slug, hits[i].Chunk.Index, w.slug, w.idx)
		}
	}
}

func TestMemoryIndex_Empty(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	hits, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
	hits, _ = idx.Search(context.Background(), []float32{1, 0}, 0)
	if hits != nil {
		t.Error("k=0 should return nil")
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Replace(ctx, []*models.Chunk{chunk("keep", 0, 1, 0)})

	err := idx.Replace(ctx, []*models.Chunk{chunk("bad", 0, 1, 0, 0)})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("failed replace must keep previous generation, size=%d", idx.Size())
	}

	if _, err := idx.Search(ctx, []float32{1}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for short query, got %v", err)
	}
}

func TestMemoryIndex_ReplaceCopiesInput(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	in := chunk("a", 0, 1, 0)
	_ = idx.Replace(ctx, []*models.Chunk{in})
	in.Embedding[0] = 0
	in.Embedding[1] = 1

	hits, _ := idx.Search(ctx, []float32{1, 0}, 1)
	if hits[0].Distance > 1e-9 {
		t.Errorf("index should not alias caller slices, distance=%f", hits[0].Distance)
	}
}

func TestMemoryIndex_ConcurrentSearchDuringReplace(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	genA := []*models.Chunk{chunk("a", 0, 1, 0), chunk("a", 1, 0, 1)}
	genB := []*models.Chunk{chunk("b", 0, 1, 0), chunk("b", 1, 0, 1)}
	_ = idx.Replace(ctx, genA)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				_ = idx.Replace(ctx, genB)
			} else {
				_ = idx.Replace(ctx, genA)
			}
		}
	}()
	for i := 0; i < 200; i++ {
		hits, err := idx.Search(ctx, []float32{1, 1}, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 2 || hits[0].Chunk.Slug != hits[1].Chunk.Slug {
			t.Fatalf("observed mixed generation: %+v", hits)
		}
	}
	wg.Wait()
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2}, []float32{1, 2}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero", []float32{0, 0}, []float32{1, 0}, 1},
		{"scale invariant", []float32{2, 0}, []float32{5, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineDistance(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineDistance = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestMemoryIndex_SearchDistanceMatchesCosineDistance(t *testing.T) {
	ctx := context.Background()
	idx, _ := NewMemoryIndex(3)
	chunks := []*models.Chunk{
		chunk("same", 0, 0.3, 0.3, 0.3),
		chunk("opposite", 0, -0.1, -0.1, -0.1),
		chunk("zero", 0, 0, 0, 0),
		chunk("oblique", 0, 1, 2, 0.5),
	}
	if err := idx.Replace(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	query := []float32{0.7, 0.7, 0.7}
	hits, err := idx.Search(ctx, query, len(chunks))
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != len(chunks) {
		t.Fatalf("got %d hits, want %d", len(hits), len(chunks))
	}
	for _, h := range hits {
		want := CosineDistance(query, h.Chunk.Embedding)
		if h.Distance != want {
			t.Errorf("%s: distance = %v, want %v", h.Chunk.Slug, h.Distance, want)
		}
		if h.Distance < 0 || h.Distance > 2 {
			t.Errorf("%s: distance %v outside [0, 2]", h.Chunk.Slug, h.Distance)
		}
	}
	if hits[0].Chunk.Slug != "same" || hits[len(hits)-1].Chunk.Slug != "opposite" {
		t.Errorf("unexpected order: first %s, last %s", hits[0].Chunk.Slug, hits[len(hits)-1].Chunk.Slug)
	}
}
