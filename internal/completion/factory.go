package completion

import (
	"context"
	"fmt"

	"github.com/hyperjump/kaiwa/internal/config"
)

// New creates the configured completer.
func New(ctx context.Context, cfg config.CompletionConfig) (Completer, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGemini(ctx, cfg.APIKey(), cfg.Model)
	case "mock":
		return NewScripted(), nil
	default:
		return nil, fmt.Errorf("unknown completion provider: %s (supported: gemini, mock): %w", cfg.Provider, ErrNotConfigured)
	}
}
