package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/completion"
	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/embedding"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"where are the herons", "-limit", "5"},
			expected: []string{"-limit", "5", "where are the herons"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-limit", "5", "where are the herons"},
			expected: []string{"-limit", "5", "where are the herons"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"where are the herons"},
			expected: []string{"where are the herons"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"one", "two", "-mode", "conversation"},
			expected: []string{"-mode", "conversation", "one", "two"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestJoinArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"herons"}, "herons"},
		{"multiple words", []string{"river", "herons"}, "river herons"},
		{"single quoted phrase", []string{"river herons"}, "river herons"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinArgs(tt.args); got != tt.expected {
				t.Errorf("joinArgs(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestSearchViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("q") != "river herons" || r.URL.Query().Get("limit") != "3" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"slug": "journal/river", "chunkIndex": 1, "type": "journal entry", "score": 0.8, "snippet": "herons"},
			},
		})
	}))
	defer srv.Close()

	hits, err := searchViaHTTP(srv.URL+"/", "river herons", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Slug != "journal/river" || hits[0].ChunkIndex != 1 || hits[0].Score != 0.8 {
		t.Errorf("hits = %+v", hits)
	}
}

func TestReindexViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"documents": 2, "chunks": 5, "duration_ms": 250})
	}))
	defer srv.Close()

	stats, err := reindexViaHTTP(srv.URL, "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Documents != 2 || stats.Chunks != 5 || stats.Duration != 250*time.Millisecond {
		t.Errorf("stats = %+v", stats)
	}

	if _, err := reindexViaHTTP(srv.URL, "wrong"); err == nil {
		t.Error("expected error for rejected token")
	}
	if _, err := reindexViaHTTP(srv.URL, ""); err == nil {
		t.Error("expected error for missing token")
	}
}

func TestStatusFields_sorted(t *testing.T) {
	fields := statusFields(map[string]any{"sessions": 1, "chunks": 4, "dimensions": 768})
	var keys []string
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	if !reflect.DeepEqual(keys, []string{"chunks", "dimensions", "sessions"}) {
		t.Errorf("keys = %v", keys)
	}
}

func TestInitializeComponents_MissingCredentialsDegrade(t *testing.T) {
	t.Setenv("KAIWA_TEST_GEMINI_KEY", "")
	dir := t.TempDir()
	content := filepath.Join(dir, "content")
	if err := os.MkdirAll(content, 0755); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:   filepath.Join(dir, "kaiwa.db"),
			BleveIndexPath: filepath.Join(dir, "bleve"),
		},
		Embedding:  config.EmbeddingConfig{Provider: "gemini", APIKeyEnv: "KAIWA_TEST_GEMINI_KEY"},
		Completion: config.CompletionConfig{Provider: "gemini", APIKeyEnv: "KAIWA_TEST_GEMINI_KEY"},
		Corpus:     config.CorpusConfig{Source: "directory", Directory: content},
	}
	config.ApplyDefaults(cfg)

	c, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("initializeComponents: %v", err)
	}
	defer c.Close()

	if _, err := c.Embedder.Embed(context.Background(), "herons"); !errors.Is(err, embedding.ErrNotConfigured) {
		t.Errorf("Embed err = %v, want embedding.ErrNotConfigured", err)
	}
	if got := c.Retrieval.Retrieve(context.Background(), "herons", 3); !got.Empty() {
		t.Errorf("Retrieve = %+v, want empty", got)
	}
	_, err = c.Chat.Query(context.Background(), "hello")
	if !errors.Is(err, completion.ErrNotConfigured) {
		t.Errorf("Query err = %v, want completion.ErrNotConfigured", err)
	}
}
