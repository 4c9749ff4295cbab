package vector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/storage"
)

// PersistentIndex keeps the chunk set in SQLite and serves searches from an
// in-memory snapshot loaded at startup.
type PersistentIndex struct {
	*MemoryIndex
	records storage.ChunkRecords
	logger  *zap.Logger
}

// Option configures a PersistentIndex.
type Option func(*PersistentIndex)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *PersistentIndex) { p.logger = logger }
}

// OpenPersistent loads the committed generation from records. A stored
// generation with different dimensions is ignored until the next re-index.
func OpenPersistent(ctx context.Context, records storage.ChunkRecords, dimensions int, opts ...Option) (*PersistentIndex, error) {
	mem, err := NewMemoryIndex(dimensions)
	if err != nil {
		return nil, err
	}
	p := &PersistentIndex{MemoryIndex: mem, records: records, logger: zap.NewNop()}
	for _, o := range opts {
		o(p)
	}

	meta, err := records.IndexMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("read index meta: %w", err)
	}
	if meta.Dimensions != 0 && meta.Dimensions != dimensions {
		p.logger.Warn("stored index has different dimensions; re-index required",
			zap.Int("stored", meta.Dimensions), zap.Int("configured", dimensions))
		return p, nil
	}

	chunks, err := records.ListChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	if err := mem.Replace(ctx, chunks); err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	p.logger.Debug("vector index loaded", zap.Int("chunks", len(chunks)), zap.Time("generated_at", meta.GeneratedAt))
	return p, nil
}

// Replace commits chunks to SQLite in one transaction and then swaps the
// in-memory snapshot. If either step fails the previous generation stays live.
func (p *PersistentIndex) Replace(ctx context.Context, chunks []*models.Chunk) error {
	gen, err := p.build(chunks)
	if err != nil {
		return err
	}
	if err := p.records.ReplaceChunks(ctx, chunks, p.dimensions); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}
	p.snapshot.Store(gen)
	return nil
}
