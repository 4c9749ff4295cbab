package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kaiwa/internal/config"
)

// Provider names accepted in embedding.provider.
const (
	ProviderGemini = "gemini"
	ProviderONNX   = "onnx"
	ProviderMock   = "mock"
)

// New creates the configured embedder wrapped in a query cache.
func New(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case ProviderGemini, "":
		e, err = NewGeminiEmbedder(ctx, cfg.APIKey(), cfg.Model, cfg.Dimensions)
	case ProviderONNX:
		e, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	case ProviderMock:
		e = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: gemini, onnx, mock): %w", cfg.Provider, ErrNotConfigured)
	}
	if err != nil {
		return nil, err
	}
	return WithCache(e, cfg.CacheSize), nil
}
