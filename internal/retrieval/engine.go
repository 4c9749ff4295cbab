// Package retrieval finds corpus passages relevant to a query and formats them
// as grounding context for a prompt.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/vector"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

var errMalformedEmbedding = errors.New("malformed query embedding")

// Engine embeds a query and ranks the nearest chunks.
type Engine struct {
	embedder    embedding.Embedder
	index       vector.Index
	maxDistance float64
	logger      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMaxDistance drops hits farther than d from the query. Zero keeps every hit.
func WithMaxDistance(d float64) Option {
	return func(e *Engine) { e.maxDistance = d }
}

// NewEngine creates a retrieval engine.
func NewEngine(embedder embedding.Embedder, index vector.Index, opts ...Option) *Engine {
	e := &Engine{embedder: embedder, index: index, logger: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Retrieve returns up to k hits for query, ascending by distance. It never
// fails: any problem is logged and yields an empty result so callers can
// answer without grounding.
func (e *Engine) Retrieve(ctx context.Context, query string, k int) models.RetrievalResult {
	hits, err := e.retrieve(ctx, query, k)
	if err != nil {
		e.logger.Warn("retrieval failed; continuing without grounding", zap.Error(err))
		return models.RetrievalResult{}
	}
	return models.RetrievalResult{Hits: hits}
}

func (e *Engine) retrieve(ctx context.Context, query string, k int) ([]models.Hit, error) {
	if k <= 0 || e.index.Size() == 0 {
		return nil, nil
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) != e.index.Dimensions() {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", errMalformedEmbedding, len(vec), e.index.Dimensions())
	}
	if !utils.AllFinite(vec) {
		return nil, fmt.Errorf("%w: non-finite component", errMalformedEmbedding)
	}

	hits, err := e.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	// Index implementations may not order ties; normalize before truncating.
	vector.SortHits(hits)
	if e.maxDistance > 0 {
		kept := hits[:0]
		for _, h := range hits {
			if h.Distance <= e.maxDistance {
				kept = append(kept, h)
			}
		}
		hits = kept
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	e.logger.Debug("retrieved chunks", zap.Int("hits", len(hits)), zap.Int("k", k))
	return hits, nil
}
