// Package integration exercises the re-index and answer pipeline against real
// storage and indexes, without the HTTP layer.
package integration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kaiwa/internal/chat"
	"github.com/hyperjump/kaiwa/internal/completion"
	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/corpus"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/retrieval"
	"github.com/hyperjump/kaiwa/internal/session"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/internal/vector"
)

type pipeline struct {
	root      string
	dbPath    string
	store     *storage.SQLiteStorage
	embedder  *embedding.MockEmbedder
	vectors   *vector.PersistentIndex
	keywords  *keyword.BleveIndex
	completer *completion.Scripted
	sessions  *session.Store
	reindexer *corpus.Reindexer
	chat      *chat.Service
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	p := &pipeline{root: filepath.Join(dir, "content"), dbPath: filepath.Join(dir, "db.sqlite")}
	if err := os.MkdirAll(p.root, 0755); err != nil {
		t.Fatal(err)
	}

	var err error
	p.store, err = storage.NewSQLiteStorage(p.dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.store.Close() })

	p.embedder = embedding.NewMockEmbedder(16)
	p.vectors, err = vector.OpenPersistent(ctx, p.store, 16)
	if err != nil {
		t.Fatal(err)
	}
	p.keywords, err = keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.keywords.Close() })

	source, err := corpus.NewDirectorySource(p.root, nil)
	if err != nil {
		t.Fatal(err)
	}
	p.reindexer = corpus.NewReindexer(source, p.embedder, p.vectors, p.keywords, config.CorpusConfig{
		ChunkChars: 200, ChunkOverlapChars: 40, EmbedBatchSize: 2,
	})

	p.completer = completion.NewScripted()
	p.sessions = session.NewStore(p.store, session.NewCompactor(p.completer, session.CompactorConfig{Window: 6}, nil), time.Hour)
	p.chat = chat.NewService(chat.Config{Model: "primary", TopK: 2}, p.completer,
		retrieval.NewEngine(p.embedder, p.vectors), p.sessions)
	return p
}

func (p *pipeline) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(p.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestIntegration_ReindexThenQuery(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.write(t, "journal/2024-05-01.md", "---\ntitle: River walk\n---\nThe herons were back at the weir this morning.\n")
	p.write(t, "wiki/bread.txt", "Feed the starter twice a day.\n\nKeep it somewhere warm.")

	stats, err := p.reindexer.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Documents != 2 || stats.Chunks != 2 {
		t.Errorf("stats = %+v, want 2 documents and 2 chunks", stats)
	}

	query := "The herons were back at the weir this morning."
	answer, err := p.chat.Query(ctx, query)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if answer.SessionID != "" {
		t.Errorf("query mode returned session %q", answer.SessionID)
	}
	if len(answer.Sources) == 0 || answer.Sources[0].Slug != "journal/2024-05-01" {
		t.Fatalf("sources = %+v, want journal/2024-05-01 first", answer.Sources)
	}

	reqs := p.completer.Requests()
	if len(reqs) != 1 {
		t.Fatalf("completion requests = %d, want 1", len(reqs))
	}
	if !strings.Contains(reqs[0].System, `[Source 1: journal entry "journal/2024-05-01"`) {
		t.Errorf("system prompt missing grounding:\n%s", reqs[0].System)
	}
	if !strings.Contains(reqs[0].System, query) {
		t.Errorf("system prompt missing passage text")
	}
}

func TestIntegration_PersistedIndexSurvivesReopen(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.write(t, "books/ch1.md", "# Chapter one\n\nThe cartographer arrives.")
	if _, err := p.reindexer.Run(ctx); err != nil {
		t.Fatal(err)
	}
	size := p.vectors.Size()

	reopened, err := vector.OpenPersistent(ctx, p.store, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if reopened.Size() != size || size == 0 {
		t.Errorf("reopened size = %d, want %d", reopened.Size(), size)
	}
	meta, err := p.store.IndexMeta(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if meta.GeneratedAt.IsZero() {
		t.Error("index generation time not recorded")
	}
}

func TestIntegration_ReindexReflectsEditsAndDeletes(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.write(t, "notes/a.txt", "alpha note about lanterns")
	p.write(t, "notes/b.txt", "beta note about kites")
	if _, err := p.reindexer.Run(ctx); err != nil {
		t.Fatal(err)
	}

	p.write(t, "notes/a.txt", "alpha note about zeppelins")
	if err := os.Remove(filepath.Join(p.root, "notes", "b.txt")); err != nil {
		t.Fatal(err)
	}
	stats, err := p.reindexer.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Documents != 1 {
		t.Errorf("documents = %d, want 1", stats.Documents)
	}

	hits, err := p.keywords.Search(ctx, "kites", 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("deleted document still searchable: %+v", hits)
	}
	hits, err = p.keywords.Search(ctx, "zeppelins", 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Slug != "notes/a" {
		t.Errorf("hits = %+v, want notes/a", hits)
	}
	if p.vectors.Size() != 1 {
		t.Errorf("vector index size = %d, want 1", p.vectors.Size())
	}
}

func TestIntegration_ConversationAcrossTurns(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.write(t, "wiki/kites.md", "Box kites need steady wind.")
	if _, err := p.reindexer.Run(ctx); err != nil {
		t.Fatal(err)
	}

	first, err := p.chat.Converse(ctx, chat.ConverseInput{Message: "how do box kites fly?"})
	if err != nil {
		t.Fatal(err)
	}
	if first.SessionID == "" {
		t.Fatal("conversation did not create a session")
	}
	p.completer.Reply("primary", "They need steady wind.")
	second, err := p.chat.Converse(ctx, chat.ConverseInput{SessionID: first.SessionID, Message: "and in a gale?"})
	if err != nil {
		t.Fatal(err)
	}
	if second.Response != "They need steady wind." {
		t.Errorf("response = %q", second.Response)
	}

	if got := p.sessions.History(ctx, first.SessionID); len(got) != 4 {
		t.Fatalf("history = %+v, want 4 messages", got)
	}
}

func TestIntegration_CompletionFailureRetractsTurn(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	first, err := p.chat.Converse(ctx, chat.ConverseInput{Message: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	p.completer.Fail("primary", errors.New("quota exhausted"))
	if _, err := p.chat.Converse(ctx, chat.ConverseInput{SessionID: first.SessionID, Message: "again"}); err == nil {
		t.Fatal("expected completion error")
	}

	if got := p.sessions.History(ctx, first.SessionID); len(got) != 2 {
		t.Errorf("messages after failed turn = %d, want 2", len(got))
	}
}
