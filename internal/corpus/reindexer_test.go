package corpus

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/vector"
)

type fixture struct {
	root     string
	embedder *embedding.MockEmbedder
	vectors  *vector.MemoryIndex
	keywords *keyword.BleveIndex
	r        *Reindexer
}

func newFixture(t *testing.T, embedDims int) *fixture {
	t.Helper()
	root := t.TempDir()
	vectors, err := vector.NewMemoryIndex(8)
	require.NoError(t, err)
	keywords, err := keyword.NewBleveIndex(filepath.Join(t.TempDir(), "bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = keywords.Close() })

	src, err := NewDirectorySource(root, nil)
	require.NoError(t, err)
	emb := embedding.NewMockEmbedder(embedDims)
	cfg := config.CorpusConfig{
		ChunkChars:        200,
		ChunkOverlapChars: 40,
		ChunkWords:        30,
		ChunkOverlapWords: 5,
		EmbedBatchSize:    2,
	}
	return &fixture{
		root:     root,
		embedder: emb,
		vectors:  vectors,
		keywords: keywords,
		r:        NewReindexer(src, emb, vectors, keywords, cfg, WithLogger(zap.NewNop())),
	}
}

func TestReindexer_Run(t *testing.T) {
	f := newFixture(t, 8)
	writeFile(t, f.root, "journal/river.md", "---\ntitle: River\n---\n# Herons\n\n"+strings.Repeat("Herons wade in the shallows. ", 12))
	writeFile(t, f.root, "books/one.txt", "Chapter one.\n\nThe lighthouse keeper counted ships.")

	stats, err := f.r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Zero(t, stats.Skipped)
	assert.Greater(t, stats.Chunks, 2)
	assert.Equal(t, stats.Chunks, f.vectors.Size())

	count, err := f.keywords.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(stats.Chunks), count)

	results, err := f.keywords.Search(context.Background(), "lighthouse", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "books/one", results[0].Slug)
}

func TestReindexer_DuplicateSlugSkipped(t *testing.T) {
	f := newFixture(t, 8)
	writeFile(t, f.root, "notes/a.md", "markdown version")
	writeFile(t, f.root, "notes/a.txt", "text version")

	stats, err := f.r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, f.vectors.Size())
}

func TestReindexer_FailureKeepsPreviousGeneration(t *testing.T) {
	f := newFixture(t, 8)
	writeFile(t, f.root, "a.md", "first document")
	_, err := f.r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, f.vectors.Size())

	writeFile(t, f.root, "b.md", "second document")
	f.embedder.FailWith(errors.New("quota exceeded"))
	_, err = f.r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, f.vectors.Size())
	count, err := f.keywords.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestReindexer_DimensionMismatch(t *testing.T) {
	f := newFixture(t, 4)
	writeFile(t, f.root, "a.md", "some text")

	_, err := f.r.Run(context.Background())
	assert.ErrorIs(t, err, ErrMalformedEmbedding)
	assert.Zero(t, f.vectors.Size())
}

func TestReindexer_ConcurrentRunsSerialized(t *testing.T) {
	f := newFixture(t, 8)
	writeFile(t, f.root, "a.md", "alpha\n\nbeta\n\ngamma")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.r.Run(context.Background())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, f.vectors.Size())
}

func TestReindexer_CanceledContext(t *testing.T) {
	f := newFixture(t, 8)
	writeFile(t, f.root, "a.md", "text")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.r.Run(ctx)
	assert.Error(t, err)
	assert.Zero(t, f.vectors.Size())
}
