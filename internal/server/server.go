// Package server provides the HTTP API for kaiwa.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/chat"
	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/corpus"
	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/internal/vector"
)

const (
	requestTimeout     = 60 * time.Second
	defaultMaxBody     = 64 << 10
	defaultMaxMessage  = 4000
	defaultSessionTTL  = 30 * time.Minute
	sessionCookieName  = "kaiwa_session"
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// Chat answers questions and conversation turns.
type Chat interface {
	Query(ctx context.Context, message string) (chat.Answer, error)
	Converse(ctx context.Context, in chat.ConverseInput) (chat.Answer, error)
}

// Reindexer rebuilds the corpus indexes.
type Reindexer interface {
	Run(ctx context.Context) (corpus.Stats, error)
}

// Deps are the components the server routes requests to. Reindexer may be nil.
type Deps struct {
	Chat      Chat
	Keywords  keyword.Index
	Vectors   vector.Index
	Storage   storage.Storage
	Reindexer Reindexer
	// SessionTTL is the session cookie lifetime, normally the session idle timeout.
	SessionTTL time.Duration
	// DiskPaths are summed for the disk usage reported by /status.
	DiskPaths []string
}

// Server is the HTTP server for the kaiwa API.
type Server struct {
	deps   Deps
	config *config.ServerConfig
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(cfg *config.ServerConfig, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.SessionTTL <= 0 {
		deps.SessionTTL = defaultSessionTTL
	}
	return &Server{
		deps:   deps,
		config: cfg,
		logger: logger,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Post("/chat", s.handleChat)
		r.Post("/rag", s.handleRAG)
		r.Get("/search", s.handleSearch)
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
	})

	// Re-index may outlast the request timeout.
	r.Post("/admin/reindex", s.requireAdmin(s.handleReindex))
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) maxBody() int64 {
	if s.config.MaxBodyBytes > 0 {
		return s.config.MaxBodyBytes
	}
	return defaultMaxBody
}

func (s *Server) maxMessage() int {
	if s.config.MaxMessageChars > 0 {
		return s.config.MaxMessageChars
	}
	return defaultMaxMessage
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
