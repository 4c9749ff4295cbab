package keyword

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

const (
	currentFile    = "CURRENT"
	snippetChars   = 240
	batchSize      = 500
	generationBase = "gen-"
)

// ErrClosed is returned by operations on a closed index.
var ErrClosed = errors.New("keyword index closed")

// BleveIndex implements Index with one Bleve index per generation under a root
// directory. A CURRENT file names the live generation.
type BleveIndex struct {
	root   string
	logger *zap.Logger

	mu     sync.RWMutex
	index  bleve.Index
	gen    string
	closed bool
}

// Option configures a BleveIndex.
type Option func(*BleveIndex)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *BleveIndex) { b.logger = logger }
}

// NewBleveIndex opens the live generation under root, or creates an empty one.
func NewBleveIndex(root string, opts ...Option) (*BleveIndex, error) {
	b := &BleveIndex{root: root, logger: zap.NewNop()}
	for _, o := range opts {
		o(b)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create index root: %w", err)
	}

	if name, err := os.ReadFile(filepath.Join(root, currentFile)); err == nil {
		gen := strings.TrimSpace(string(name))
		index, openErr := bleve.Open(filepath.Join(root, gen))
		if openErr == nil {
			b.index, b.gen = index, gen
			return b, nil
		}
		b.logger.Warn("live keyword generation unreadable; starting empty",
			zap.String("generation", gen), zap.Error(openErr))
	}

	index, gen, err := b.newGeneration()
	if err != nil {
		return nil, err
	}
	if err := b.writeCurrent(gen); err != nil {
		_ = index.Close()
		return nil, err
	}
	b.index, b.gen = index, gen
	return b, nil
}

func buildMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Standard analyzer (lowercase + tokenize, no stemming) so names match exactly.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = standard.Name
	titleFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("title", titleFieldMapping)

	docMapping.AddFieldMappingsAt("slug", bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt("chunk_index", bleve.NewNumericFieldMapping())

	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im
}

func (b *BleveIndex) newGeneration() (bleve.Index, string, error) {
	gen := generationBase + strconv.FormatInt(time.Now().UnixNano(), 10)
	index, err := bleve.New(filepath.Join(b.root, gen), buildMapping())
	if err != nil {
		return nil, "", fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return index, gen, nil
}

func (b *BleveIndex) writeCurrent(gen string) error {
	tmp := filepath.Join(b.root, currentFile+".tmp")
	if err := os.WriteFile(tmp, []byte(gen+"\n"), 0644); err != nil {
		return fmt.Errorf("write current generation: %w", err)
	}
	return os.Rename(tmp, filepath.Join(b.root, currentFile))
}

func docID(c *models.Chunk) string {
	return c.Slug + "#" + strconv.Itoa(c.Index)
}

// titleFromSlug turns "journal/2024-01-02-spring-walk" into searchable words.
func titleFromSlug(slug string) string {
	return strings.NewReplacer("/", " ", "-", " ", "_", " ").Replace(slug)
}

// Rebuild indexes chunks into a new generation, makes it live, and removes the
// previous one. On error the live generation is untouched.
func (b *BleveIndex) Rebuild(ctx context.Context, chunks []*models.Chunk) error {
	index, gen, err := b.newGeneration()
	if err != nil {
		return err
	}
	abandon := func(err error) error {
		_ = index.Close()
		_ = os.RemoveAll(filepath.Join(b.root, gen))
		return err
	}

	batch := index.NewBatch()
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return abandon(err)
		}
		doc := map[string]interface{}{
			"slug":        c.Slug,
			"title":       titleFromSlug(c.Slug),
			"content":     c.Content,
			"chunk_index": float64(c.Index),
		}
		if err := batch.Index(docID(c), doc); err != nil {
			return abandon(fmt.Errorf("index chunk %s: %w", docID(c), err))
		}
		if batch.Size() >= batchSize {
			if err := index.Batch(batch); err != nil {
				return abandon(fmt.Errorf("commit batch: %w", err))
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			return abandon(fmt.Errorf("commit batch: %w", err))
		}
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return abandon(ErrClosed)
	}
	if err := b.writeCurrent(gen); err != nil {
		b.mu.Unlock()
		return abandon(err)
	}
	old, oldGen := b.index, b.gen
	b.index, b.gen = index, gen
	b.mu.Unlock()

	if old != nil {
		_ = old.Close()
		if err := os.RemoveAll(filepath.Join(b.root, oldGen)); err != nil {
			b.logger.Warn("failed to remove old keyword generation", zap.String("generation", oldGen), zap.Error(err))
		}
	}
	b.logger.Debug("keyword index rebuilt", zap.String("generation", gen), zap.Int("chunks", len(chunks)))
	return nil
}

// Search runs a match query over content, optionally boosting title and phrase
// matches and tolerating typos.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	if opts == nil {
		opts = &SearchOptions{}
	}

	req := bleve.NewSearchRequest(buildQuery(query, opts))
	req.Size = limit
	req.Fields = []string{"slug", "chunk_index", "content"}
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.AddField("content")

	b.mu.RLock()
	if b.index == nil {
		b.mu.RUnlock()
		return nil, ErrClosed
	}
	results, err := b.index.SearchInContext(ctx, req)
	b.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	out := make([]*Result, 0, len(results.Hits))
	for _, hit := range results.Hits {
		r := &Result{Score: hit.Score}
		r.Slug, _ = hit.Fields["slug"].(string)
		if f, ok := hit.Fields["chunk_index"].(float64); ok {
			r.ChunkIndex = int(f)
		}
		if frags := hit.Fragments["content"]; len(frags) > 0 {
			r.Snippet = frags[0]
		} else if content, ok := hit.Fields["content"].(string); ok {
			r.Snippet = utils.Truncate(utils.CollapseWhitespace(content), snippetChars)
		}
		out = append(out, r)
	}
	return out, nil
}

func buildQuery(query string, opts *SearchOptions) blevequery.Query {
	fuzziness := opts.Fuzziness
	if fuzziness > 2 {
		fuzziness = 2
	}

	content := bleve.NewMatchQuery(query)
	content.SetField("content")
	content.SetFuzziness(fuzziness)
	clauses := []blevequery.Query{content}

	if opts.TitleBoost > 1 {
		title := bleve.NewMatchQuery(query)
		title.SetField("title")
		title.SetFuzziness(fuzziness)
		title.SetBoost(opts.TitleBoost)
		clauses = append(clauses, title)
	}
	if opts.PhraseBoost > 1 && len(strings.Fields(query)) > 1 {
		phrase := bleve.NewMatchPhraseQuery(query)
		phrase.SetField("content")
		phrase.SetBoost(opts.PhraseBoost)
		clauses = append(clauses, phrase)
	}

	if len(clauses) == 1 {
		return content
	}
	return bleve.NewDisjunctionQuery(clauses...)
}

// DocCount returns the number of chunks in the live generation.
func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.index == nil {
		return 0, ErrClosed
	}
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.index == nil {
		return nil
	}
	err := b.index.Close()
	b.index = nil
	return err
}
