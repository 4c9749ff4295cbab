// Package embedding turns text into vectors for semantic retrieval.
package embedding

import (
	"context"
	"errors"
)

// ErrNotConfigured reports a provider that cannot embed at all, such as one
// missing its API key. Retrieval treats it like any other embedding failure.
var ErrNotConfigured = errors.New("embedding provider not configured")

// Embedder produces vector embeddings for text. Embed is used for queries and
// EmbedBatch for corpus documents; providers that distinguish the two tasks
// may embed them differently.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

type unavailable struct {
	reason     error
	dimensions int
}

// Unavailable returns an embedder that fails every call with reason. The server
// runs with it when no provider is configured: retrieval comes back empty and
// re-index fails, but conversation still works.
func Unavailable(reason error, dimensions int) Embedder {
	return unavailable{reason: reason, dimensions: dimensions}
}

func (u unavailable) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, u.reason
}

func (u unavailable) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, u.reason
}

func (u unavailable) Dimensions() int { return u.dimensions }

func (u unavailable) Close() error { return nil }
