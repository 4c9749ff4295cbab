package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/chat"
	"github.com/hyperjump/kaiwa/internal/completion"
	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/storage"
)

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
}

type ragResponse struct {
	Response string          `json:"response"`
	Sources  []models.Source `json:"sources"`
}

type searchResult struct {
	Slug       string         `json:"slug"`
	ChunkIndex int            `json:"chunkIndex"`
	Type       models.DocType `json:"type"`
	Score      float64        `json:"score"`
	Snippet    string         `json:"snippet"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	if err := req.Validate(s.maxMessage()); err != nil {
		s.respondErr(w, err)
		return
	}

	if req.Mode == models.ModeQuery {
		answer, err := s.deps.Chat.Query(r.Context(), req.Message)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, chatResponse{Response: answer.Response})
		return
	}

	answer, err := s.deps.Chat.Converse(r.Context(), chat.ConverseInput{
		SessionID:    sessionFromCookie(r),
		Message:      req.Message,
		ClearContext: req.ClearContext,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    answer.SessionID,
		Path:     "/",
		MaxAge:   int(s.deps.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.config.CookieSecure,
	})
	s.respondJSON(w, http.StatusOK, chatResponse{Response: answer.Response, SessionID: answer.SessionID})
}

func (s *Server) handleRAG(w http.ResponseWriter, r *http.Request) {
	var req models.RAGRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	if err := req.Validate(s.maxMessage()); err != nil {
		s.respondErr(w, err)
		return
	}
	answer, err := s.deps.Chat.Query(r.Context(), req.Message)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	sources := answer.Sources
	if sources == nil {
		sources = []models.Source{}
	}
	s.respondJSON(w, http.StatusOK, ragResponse{Response: answer.Response, Sources: sources})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSearchLimit)
	}
	if s.deps.Keywords == nil {
		s.respondError(w, http.StatusServiceUnavailable, "full-text search is not configured")
		return
	}

	s.logger.Debug("search request", zap.String("query", q), zap.Int("limit", limit))
	hits, err := s.deps.Keywords.Search(r.Context(), q, limit, &keyword.SearchOptions{PhraseBoost: 2, Fuzziness: 1})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	results := make([]searchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, searchResult{
			Slug:       h.Slug,
			ChunkIndex: h.ChunkIndex,
			Type:       models.DocTypeForSlug(h.Slug),
			Score:      h.Score,
			Snippet:    h.Snippet,
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reindexer == nil {
		s.respondError(w, http.StatusServiceUnavailable, "re-index is not configured")
		return
	}
	stats, err := s.deps.Reindexer.Run(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"documents":   stats.Documents,
		"skipped":     stats.Skipped,
		"chunks":      stats.Chunks,
		"duration_ms": stats.Duration.Milliseconds(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chunkCount, err := s.deps.Storage.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	sessionCount, err := s.deps.Storage.CountSessions(ctx)
	if err != nil {
		s.logger.Error("status: count sessions failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	resp := map[string]any{
		"chunks":            chunkCount,
		"sessions":          sessionCount,
		"vector_index_size": s.deps.Vectors.Size(),
		"dimensions":        s.deps.Vectors.Dimensions(),
	}
	if meta, err := s.deps.Storage.IndexMeta(ctx); err == nil && !meta.GeneratedAt.IsZero() {
		resp["generated_at"] = meta.GeneratedAt
	}
	if diskBytes, err := storage.DiskUsageBytes(s.deps.DiskPaths...); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := s.config.AdminToken()
		if token == "" {
			s.respondError(w, http.StatusServiceUnavailable, "admin token is not configured")
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			s.respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// sessionFromCookie returns the session id carried by the request, or "" when
// the cookie is missing or not a uuid.
func sessionFromCookie(r *http.Request) string {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return ""
	}
	return id.String()
}

// decode reads exactly one JSON object, rejecting unknown fields and oversized bodies.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody())
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body exceeds %d bytes", models.ErrValidation, tooLarge.Limit)
		}
		return fmt.Errorf("%w: invalid request body: %v", models.ErrValidation, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: request body must contain a single JSON object", models.ErrValidation)
	}
	return nil
}

// respondErr maps err onto a status code. Only validation messages reach the client verbatim.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, completion.ErrNotConfigured):
		s.logger.Warn("completion not configured", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "completion provider is not configured")
	case errors.Is(err, chat.ErrCompletion):
		s.logger.Error("completion failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, "completion failed")
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
