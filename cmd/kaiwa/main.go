// Package main is the kaiwa CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/chat"
	"github.com/hyperjump/kaiwa/internal/cli"
	"github.com/hyperjump/kaiwa/internal/completion"
	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/corpus"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/retrieval"
	"github.com/hyperjump/kaiwa/internal/server"
	"github.com/hyperjump/kaiwa/internal/session"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/internal/vector"
	"github.com/hyperjump/kaiwa/internal/watcher"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kaiwa/config.yaml"
	httpTimeout       = 2 * time.Minute
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "search":
		runSearch()
	case "reindex":
		runReindex()
	case "sweep":
		runSweep()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kaiwa version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads the config and builds the logger, exiting on failure.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved))
	return cfg, logger
}

func mustComponents(cfg *config.Config, logger *zap.Logger) *Components {
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize components: %v\n", err)
		os.Exit(1)
	}
	return components
}

func mustFormat(s string) cli.OutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return format
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	go components.Sessions.RunSweeper(bgCtx, cfg.Session.SweepInterval)

	if components.Vectors.Size() == 0 {
		go func() {
			if _, err := components.Reindexer.Run(bgCtx); err != nil {
				logger.Warn("Initial re-index failed", zap.Error(err))
			}
		}()
	}

	if w := newCorpusWatcher(bgCtx, cfg, components, logger); w != nil {
		if err := w.Start(bgCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(&cfg.Server, server.Deps{
		Chat:       components.Chat,
		Keywords:   components.Keywords,
		Vectors:    components.Vectors,
		Storage:    components.Storage,
		Reindexer:  components.Reindexer,
		SessionTTL: cfg.Session.IdleTimeout,
		DiskPaths:  diskPaths(cfg),
	}, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	bgCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// newCorpusWatcher returns a watcher that re-indexes on content changes, or nil
// when watching is off or the source is not a directory.
func newCorpusWatcher(ctx context.Context, cfg *config.Config, c *Components, logger *zap.Logger) *watcher.Watcher {
	if !cfg.Corpus.Watch {
		return nil
	}
	dir, ok := c.Reindexer.Source().(*corpus.DirectorySource)
	if !ok {
		logger.Warn("corpus.watch is only supported for directory sources", zap.String("source", cfg.Corpus.Source))
		return nil
	}
	return watcher.NewWatcher(dir.Root(), dir.Matches, func() {
		if _, err := c.Reindexer.Run(ctx); err != nil {
			logger.Warn("Watch-triggered re-index failed", zap.Error(err))
		}
	}, watcher.WithDebounce(cfg.Corpus.WatchDebounce), watcher.WithLogger(logger))
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	mode := fs.String("mode", "query", "query (stateless) or conversation")
	sessionID := fs.String("session", "", "session id to continue (conversation mode)")
	clearContext := fs.Bool("clear", false, "clear the session before this turn")
	output := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kaiwa ask [flags] <message>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	message := joinArgs(fs.Args())
	if message == "" {
		fs.Usage()
		os.Exit(1)
	}
	format := mustFormat(*output)

	cfg, logger := setup(*configPath, false)
	defer logger.Sync()
	components := mustComponents(cfg, logger)
	defer components.Close()

	ctx := context.Background()
	var (
		answer chat.Answer
		err    error
	)
	switch *mode {
	case "query":
		answer, err = components.Chat.Query(ctx, message)
	case "conversation":
		answer, err = components.Chat.Converse(ctx, chat.ConverseInput{
			SessionID:    *sessionID,
			Message:      message,
			ClearContext: *clearContext,
		})
	default:
		fmt.Printf("Unknown mode %q; use query or conversation\n", *mode)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, answer, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if format == cli.OutputText && answer.SessionID != "" {
		fmt.Printf("(session: %s)\n", answer.SessionID)
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = open the index directly when the server is not running)")
	limit := fs.Int("limit", 10, "number of results")
	output := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kaiwa search [flags] <query>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := joinArgs(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	format := mustFormat(*output)

	var (
		hits []*keyword.Result
		err  error
	)
	if *serverURL != "" {
		// The HTTP API avoids the bleve lock held by a running server.
		hits, err = searchViaHTTP(*serverURL, query, *limit)
	} else {
		cfg, logger := setup(*configPath, false)
		defer logger.Sync()
		var kw *keyword.BleveIndex
		kw, err = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath, keyword.WithLogger(logger))
		if err == nil {
			defer kw.Close()
			hits, err = kw.Search(context.Background(), query, *limit, &keyword.SearchOptions{PhraseBoost: 2, Fuzziness: 1})
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, query, hits, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL, query string, limit int) ([]*keyword.Result, error) {
	u := strings.TrimRight(serverURL, "/") + "/search?" + url.Values{
		"q":     {query},
		"limit": {fmt.Sprint(limit)},
	}.Encode()
	var out cli.SearchOutput
	if err := doJSON(http.MethodGet, u, "", &out); err != nil {
		return nil, err
	}
	hits := make([]*keyword.Result, 0, len(out.Results))
	for _, r := range out.Results {
		hits = append(hits, &keyword.Result{Slug: r.Slug, ChunkIndex: r.ChunkIndex, Score: r.Score, Snippet: r.Snippet})
	}
	return hits, nil
}

func runReindex() {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "trigger the re-index on a running server instead of locally")
	output := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])
	format := mustFormat(*output)

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	var (
		stats corpus.Stats
		err   error
	)
	if *serverURL != "" {
		stats, err = reindexViaHTTP(*serverURL, cfg.Server.AdminToken())
	} else {
		components := mustComponents(cfg, logger)
		defer components.Close()
		stats, err = components.Reindexer.Run(context.Background())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Re-index failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteReindexStats(os.Stdout, stats, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func reindexViaHTTP(serverURL, token string) (corpus.Stats, error) {
	if token == "" {
		return corpus.Stats{}, errors.New("admin token is not set (see server.admin_token_env)")
	}
	var out struct {
		Documents  int   `json:"documents"`
		Skipped    int   `json:"skipped"`
		Chunks     int   `json:"chunks"`
		DurationMS int64 `json:"duration_ms"`
	}
	if err := doJSON(http.MethodPost, strings.TrimRight(serverURL, "/")+"/admin/reindex", token, &out); err != nil {
		return corpus.Stats{}, err
	}
	return corpus.Stats{
		Documents: out.Documents,
		Skipped:   out.Skipped,
		Chunks:    out.Chunks,
		Duration:  time.Duration(out.DurationMS) * time.Millisecond,
	}, nil
}

func runSweep() {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, false)
	defer logger.Sync()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	sessions := session.NewStore(store, session.NewCompactor(nil, session.CompactorConfig{Window: cfg.Session.Window}, logger),
		cfg.Session.IdleTimeout, session.WithLogger(logger))
	n, err := sessions.SweepExpired(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sweep failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed %d expired sessions\n", n)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = read storage directly)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := mustFormat(*output)

	var (
		fields []cli.StatusField
		err    error
	)
	if *serverURL != "" {
		fields, err = statusViaHTTP(*serverURL)
	} else {
		cfg, logger := setup(*configPath, false)
		defer logger.Sync()
		fields, err = statusDirect(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, fields, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) ([]cli.StatusField, error) {
	var out map[string]any
	if err := doJSON(http.MethodGet, strings.TrimRight(serverURL, "/")+"/status", "", &out); err != nil {
		return nil, err
	}
	return statusFields(out), nil
}

func statusDirect(cfg *config.Config) ([]cli.StatusField, error) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	chunks, err := store.CountChunks(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := store.CountSessions(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := store.IndexMeta(ctx)
	if err != nil {
		return nil, err
	}
	m := map[string]any{
		"chunks":     chunks,
		"sessions":   sessions,
		"dimensions": meta.Dimensions,
	}
	if !meta.GeneratedAt.IsZero() {
		m["generated_at"] = meta.GeneratedAt.Format(time.RFC3339)
	}
	if n, err := storage.DiskUsageBytes(diskPaths(cfg)...); err == nil {
		m["disk_usage_bytes"] = n
	}
	return statusFields(m), nil
}

// statusFields orders status values by key.
func statusFields(m map[string]any) []cli.StatusField {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]cli.StatusField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, cli.StatusField{Key: k, Value: m[k]})
	}
	return fields
}

// doJSON sends a request without a body and decodes the JSON response into out.
// Error responses are reported with the server's error message.
func doJSON(method, target, bearer string, out any) error {
	req, err := http.NewRequest(method, target, nil)
	if err != nil {
		return err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("server unreachable (start with 'kaiwa server' or use --server \"\"): %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func diskPaths(cfg *config.Config) []string {
	return append(storage.DatabaseFiles(cfg.Storage.DatabasePath), cfg.Storage.BleveIndexPath)
}

// joinArgs joins positional args with spaces so multi-word input works with or
// without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the
// positional text to the front so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// Components holds the long-lived objects shared by the commands.
type Components struct {
	Storage   storage.Storage
	Embedder  embedding.Embedder
	Vectors   *vector.PersistentIndex
	Keywords  *keyword.BleveIndex
	Sessions  *session.Store
	Retrieval *retrieval.Engine
	Chat      *chat.Service
	Reindexer *corpus.Reindexer
}

// Close releases everything that holds files or connections.
func (c *Components) Close() {
	if c.Keywords != nil {
		_ = c.Keywords.Close()
	}
	if c.Vectors != nil {
		_ = c.Vectors.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	embedder, eerr := embedding.New(ctx, cfg.Embedding)
	if eerr != nil {
		if !errors.Is(eerr, embedding.ErrNotConfigured) {
			return nil, fmt.Errorf("failed to initialize embedder: %w", eerr)
		}
		logger.Warn("embedding provider unavailable; answers will not be grounded", zap.Error(eerr))
		embedder = embedding.Unavailable(eerr, cfg.Embedding.Dimensions)
	}
	c.Embedder = embedder

	c.Vectors, err = vector.OpenPersistent(ctx, c.Storage, cfg.Embedding.Dimensions, vector.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	logger.Info("vector index initialized",
		zap.Int("chunks", c.Vectors.Size()),
		zap.Int("dimensions", c.Vectors.Dimensions()))

	c.Keywords, err = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath, keyword.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	completer, cerr := completion.New(ctx, cfg.Completion)
	if cerr != nil {
		if !errors.Is(cerr, completion.ErrNotConfigured) {
			return nil, fmt.Errorf("failed to initialize completer: %w", cerr)
		}
		logger.Warn("completion provider unavailable; chat requests will fail", zap.Error(cerr))
		completer = completion.Unavailable(cerr)
	}

	compactor := session.NewCompactor(completer, session.CompactorConfig{
		Window:        cfg.Session.Window,
		SizeThreshold: cfg.Session.SizeThreshold,
		Model:         cfg.Completion.SummaryModel,
		MaxTokens:     cfg.Completion.SummaryMaxTokens,
	}, logger)
	c.Sessions = session.NewStore(c.Storage, compactor, cfg.Session.IdleTimeout, session.WithLogger(logger))

	c.Retrieval = retrieval.NewEngine(c.Embedder, c.Vectors,
		retrieval.WithLogger(logger),
		retrieval.WithMaxDistance(cfg.Retrieval.MaxDistance))

	c.Chat = chat.NewService(chat.Config{
		Persona:           cfg.Completion.Persona,
		Model:             cfg.Completion.Model,
		FallbackModel:     cfg.Completion.FallbackModel,
		Temperature:       cfg.Completion.Temperature,
		MaxTokensGrounded: cfg.Completion.MaxTokensGrounded,
		MaxTokensPlain:    cfg.Completion.MaxTokensPlain,
		TopK:              cfg.Retrieval.TopK,
		Timeout:           cfg.Completion.Timeout,
	}, completer, c.Retrieval, c.Sessions, chat.WithLogger(logger))

	source, err := corpus.NewSource(ctx, cfg.Corpus)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize corpus source: %w", err)
	}
	c.Reindexer = corpus.NewReindexer(source, c.Embedder, c.Vectors, c.Keywords, cfg.Corpus, corpus.WithLogger(logger))
	return c, nil
}

func printUsage() {
	fmt.Println(`kaiwa - Conversational assistant grounded in a content corpus

Usage:
  kaiwa server [flags]             Start the HTTP server
  kaiwa ask [flags] <message>      Ask a question from the terminal
  kaiwa search [flags] <query>     Full-text search over the corpus
  kaiwa reindex [flags]            Rebuild the corpus indexes
  kaiwa sweep [flags]              Delete expired sessions
  kaiwa status [flags]             Show index and session status
  kaiwa version                    Show version
  kaiwa help                       Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kaiwa/config.yaml, or ./config.yaml when present)
  --output string    Output format: text or json (ask, search, reindex, status)

Ask Flags:
  --mode string      query (stateless, default) or conversation
  --session string   Session id to continue in conversation mode
  --clear            Clear the session before this turn

Search/Status Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to read local files directly.
  --limit int        Number of search results (default: 10)

Reindex Flags:
  --server string    Trigger the re-index on a running server (uses the admin token from the environment)

Examples:
  kaiwa server
  kaiwa ask "what did I write about herons?"
  kaiwa ask --mode conversation --session 0b6f... "and after that?"
  kaiwa search --output json lighthouse
  kaiwa reindex --server http://localhost:8080`)
}
