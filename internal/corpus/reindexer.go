package corpus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/extract"
	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/vector"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

// ErrMalformedEmbedding is returned when the embedder yields a vector that
// cannot be stored in the index.
var ErrMalformedEmbedding = errors.New("malformed embedding")

// Stats summarizes one re-index run.
type Stats struct {
	Documents int           `json:"documents"`
	Skipped   int           `json:"skipped"`
	Chunks    int           `json:"chunks"`
	Duration  time.Duration `json:"-"`
}

// Reindexer rebuilds the vector and full-text indexes from a source. Runs are
// serialized; a failure before commit leaves the previous generation in place.
type Reindexer struct {
	source    Source
	extractor *extract.Extractor
	embedder  embedding.Embedder
	vectors   vector.Index
	keywords  keyword.Index
	packer    *Packer
	batchSize int
	limiter   *rate.Limiter
	logger    *zap.Logger

	mu sync.Mutex
}

// Option configures a Reindexer.
type Option func(*Reindexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reindexer) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewReindexer creates a re-indexer. keywords may be nil when full-text search is disabled.
func NewReindexer(source Source, embedder embedding.Embedder, vectors vector.Index, keywords keyword.Index, cfg config.CorpusConfig, opts ...Option) *Reindexer {
	limit := rate.Inf
	if cfg.EmbedRequestsPerSecond > 0 {
		limit = rate.Limit(cfg.EmbedRequestsPerSecond)
	}
	batch := cfg.EmbedBatchSize
	if batch <= 0 {
		batch = 32
	}
	r := &Reindexer{
		source:    source,
		extractor: extract.NewExtractor(),
		embedder:  embedder,
		vectors:   vectors,
		keywords:  keywords,
		packer:    NewPacker(cfg.ChunkChars, cfg.ChunkOverlapChars, NewChunker(cfg.ChunkWords, cfg.ChunkOverlapWords)),
		batchSize: batch,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Source returns the source being indexed.
func (r *Reindexer) Source() Source {
	return r.source
}

// Run reads every document, embeds its chunks and commits a new generation.
func (r *Reindexer) Run(ctx context.Context) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	r.logger.Info("Re-index started", zap.String("source", r.source.Name()))

	raws, err := r.source.Documents(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list documents: %w", err)
	}

	var stats Stats
	chunks, skipped := r.chunk(raws)
	stats.Documents = len(raws) - skipped
	stats.Skipped = skipped
	stats.Chunks = len(chunks)
	if len(chunks) == 0 {
		r.logger.Warn("Re-index produced no chunks", zap.String("source", r.source.Name()))
	}

	if err := r.embed(ctx, chunks); err != nil {
		return Stats{}, err
	}

	if err := r.vectors.Replace(ctx, chunks); err != nil {
		return Stats{}, fmt.Errorf("replace vector index: %w", err)
	}
	if r.keywords != nil {
		if err := r.keywords.Rebuild(ctx, chunks); err != nil {
			return Stats{}, fmt.Errorf("rebuild keyword index: %w", err)
		}
	}

	stats.Duration = time.Since(start)
	r.logger.Info("Re-index complete",
		zap.Int("documents", stats.Documents),
		zap.Int("skipped", stats.Skipped),
		zap.Int("chunks", stats.Chunks),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

// chunk converts raw documents to chunks. Documents that fail to extract, or
// whose slug is already taken, are skipped.
func (r *Reindexer) chunk(raws []RawDocument) ([]*models.Chunk, int) {
	var chunks []*models.Chunk
	seen := make(map[string]string, len(raws))
	skipped := 0

	for _, raw := range raws {
		doc, err := ParseDocument(r.extractor, raw)
		if err != nil {
			r.logger.Warn("Skipping document", zap.String("path", raw.Path), zap.Error(err))
			skipped++
			continue
		}
		if prev, ok := seen[doc.Slug]; ok {
			r.logger.Warn("Skipping document with duplicate slug",
				zap.String("path", raw.Path),
				zap.String("slug", doc.Slug),
				zap.String("kept", prev))
			skipped++
			continue
		}
		seen[doc.Slug] = raw.Path

		for i, content := range r.packer.Pack(doc.Paragraphs) {
			chunks = append(chunks, &models.Chunk{Slug: doc.Slug, Index: i, Content: content})
		}
	}
	return chunks, skipped
}

func (r *Reindexer) embed(ctx context.Context, chunks []*models.Chunk) error {
	dims := r.vectors.Dimensions()
	for start := 0; start < len(chunks); start += r.batchSize {
		end := start + r.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}

		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vecs, err := r.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("%w: got %d vectors for %d chunks", ErrMalformedEmbedding, len(vecs), len(batch))
		}
		for i, v := range vecs {
			if len(v) != dims || !utils.AllFinite(v) {
				return fmt.Errorf("%w: %s part %d", ErrMalformedEmbedding, batch[i].Slug, batch[i].Index)
			}
			batch[i].Embedding = v
		}
		r.logger.Debug("Embedded batch", zap.Int("from", start), zap.Int("to", end), zap.Int("total", len(chunks)))
	}
	return nil
}
