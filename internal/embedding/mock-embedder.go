package embedding

import (
	"context"
	"math"
	"sync"

	"github.com/hyperjump/kaiwa/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests. It returns a fixed-dimension
// vector derived from the text hash so that the same text always gets the same embedding.
// Individual texts can be pinned to explicit vectors with Set.
type MockEmbedder struct {
	dimensions int

	mu     sync.Mutex
	pinned map[string][]float32
	err    error
	calls  int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions, pinned: make(map[string][]float32)}
}

// Set makes Embed return v for text. v is returned as-is, even if malformed.
func (e *MockEmbedder) Set(text string, v []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinned[text] = v
}

// FailWith makes every subsequent call return err. nil restores normal behaviour.
func (e *MockEmbedder) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Calls returns the number of texts embedded so far.
func (e *MockEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Embed returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.err
	pinned, ok := e.pinned[text]
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ok {
		return pinned, nil
	}

	h := HashString(text)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
