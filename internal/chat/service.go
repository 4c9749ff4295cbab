// Package chat orchestrates a turn: session memory, retrieval, prompt assembly and completion.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/completion"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/retrieval"
	"github.com/hyperjump/kaiwa/internal/session"
)

// ErrCompletion reports that no model produced a reply, after any fallback.
var ErrCompletion = errors.New("completion failed")

// Retriever fetches grounding passages. It never fails; problems yield an empty result.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) models.RetrievalResult
}

// SessionStore is the subset of session.Store the orchestrator needs.
type SessionStore interface {
	Resolve(ctx context.Context, id string) *models.Session
	Append(ctx context.Context, id string, role models.Role, content string) (models.Message, error)
	Retract(ctx context.Context, id string, seq int64) error
	Reset(ctx context.Context, id string) error
}

// Config holds prompt and model settings.
type Config struct {
	Persona       string
	Model         string
	FallbackModel string
	Temperature   float64
	// MaxTokensGrounded bounds replies that have grounding context.
	MaxTokensGrounded int
	MaxTokensPlain    int
	TopK              int
	// Timeout bounds each completion call; zero means no extra limit.
	Timeout time.Duration
}

// Service answers queries and conversation turns.
type Service struct {
	cfg       Config
	completer completion.Completer
	retriever Retriever
	sessions  SessionStore
	logger    *zap.Logger
	newID     func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithIDGenerator overrides how new session ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates the orchestrator.
func NewService(cfg Config, completer completion.Completer, retriever Retriever, sessions SessionStore, opts ...Option) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	s := &Service{
		cfg:       cfg,
		completer: completer,
		retriever: retriever,
		sessions:  sessions,
		logger:    zap.NewNop(),
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Answer is the outcome of a query or conversation turn.
type Answer struct {
	Response  string          `json:"response"`
	SessionID string          `json:"sessionId"`
	Sources   []models.Source `json:"sources"`
	Model     string          `json:"model"`
}

// ConverseInput is one conversation turn.
type ConverseInput struct {
	// SessionID may be empty, in which case a new session is started.
	SessionID    string
	Message      string
	ClearContext bool
}

// Query answers message statelessly, grounded in retrieved passages when any match.
func (s *Service) Query(ctx context.Context, message string) (Answer, error) {
	result := s.retriever.Retrieve(ctx, message, s.cfg.TopK)
	resp, err := s.complete(ctx, completion.Request{
		System:    s.systemPrompt(result, ""),
		Turns:     []completion.Turn{{Role: completion.RoleUser, Content: message}},
		MaxTokens: s.budget(result),
	})
	if err != nil {
		return Answer{}, err
	}
	return Answer{
		Response: resp.Text,
		Sources:  retrieval.Sources(result),
		Model:    resp.Model,
	}, nil
}

// Converse runs one turn of the conversation identified by in.SessionID.
func (s *Service) Converse(ctx context.Context, in ConverseInput) (Answer, error) {
	id := in.SessionID
	if id != "" && in.ClearContext {
		if err := s.sessions.Reset(ctx, id); err != nil {
			return Answer{}, err
		}
	}
	if id == "" {
		id = s.newID()
	}

	userMsg, err := s.sessions.Append(ctx, id, models.RoleUser, in.Message)
	if err != nil {
		return Answer{}, err
	}

	result := s.retriever.Retrieve(ctx, in.Message, s.cfg.TopK)
	sess := s.sessions.Resolve(ctx, id)
	history := session.Visible(sess.Messages)

	turns := make([]completion.Turn, 0, len(history))
	for _, m := range history {
		role := completion.RoleUser
		if m.Role == models.RoleAssistant {
			role = completion.RoleAssistant
		}
		turns = append(turns, completion.Turn{Role: role, Content: m.Content})
	}
	if len(turns) == 0 {
		// The session expired or was unreadable between append and read.
		turns = append(turns, completion.Turn{Role: completion.RoleUser, Content: in.Message})
	}

	resp, err := s.complete(ctx, completion.Request{
		System:    s.systemPrompt(result, sess.Summary),
		Turns:     turns,
		MaxTokens: s.budget(result),
	})
	if err != nil {
		s.retract(id, userMsg.Seq)
		return Answer{}, err
	}

	if _, err := s.sessions.Append(ctx, id, models.RoleAssistant, resp.Text); err != nil {
		s.retract(id, userMsg.Seq)
		return Answer{}, fmt.Errorf("store reply: %w", err)
	}

	return Answer{
		Response:  resp.Text,
		SessionID: id,
		Sources:   retrieval.Sources(result),
		Model:     resp.Model,
	}, nil
}

// retract undoes the user message of a failed turn so a retry does not duplicate it.
// It uses a fresh context because the request context may already be done.
func (s *Service) retract(id string, seq int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.sessions.Retract(ctx, id, seq); err != nil {
		s.logger.Warn("failed to retract user message", zap.String("session", id), zap.Int64("seq", seq), zap.Error(err))
	}
}

func (s *Service) systemPrompt(result models.RetrievalResult, summary string) string {
	parts := []string{s.cfg.Persona}
	if g := retrieval.GroundingInstructions(result); g != "" {
		parts = append(parts, g)
	}
	if summary != "" {
		parts = append(parts, "Summary of the earlier conversation:\n"+summary)
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

func (s *Service) budget(result models.RetrievalResult) int {
	if result.Empty() {
		return s.cfg.MaxTokensPlain
	}
	return s.cfg.MaxTokensGrounded
}

// complete calls the primary model and, on a failure that is not a
// configuration error, retries once with the fallback model.
func (s *Service) complete(ctx context.Context, req completion.Request) (completion.Response, error) {
	req.Temperature = s.cfg.Temperature
	req.Model = s.cfg.Model

	resp, err := s.call(ctx, req)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, completion.ErrNotConfigured) {
		return completion.Response{}, fmt.Errorf("%w: %w", ErrCompletion, err)
	}
	if s.cfg.FallbackModel == "" || ctx.Err() != nil {
		return completion.Response{}, fmt.Errorf("%w: %w", ErrCompletion, err)
	}

	s.logger.Warn("primary model failed; trying fallback",
		zap.String("model", s.cfg.Model), zap.String("fallback", s.cfg.FallbackModel), zap.Error(err))
	req.Model = s.cfg.FallbackModel
	resp, ferr := s.call(ctx, req)
	if ferr != nil {
		return completion.Response{}, fmt.Errorf("%w: %w", ErrCompletion, errors.Join(err, ferr))
	}
	return resp, nil
}

func (s *Service) call(ctx context.Context, req completion.Request) (completion.Response, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := s.completer.Complete(ctx, req)
	s.logger.Debug("completion", zap.String("model", req.Model), zap.Duration("latency", time.Since(start)), zap.Error(err))
	return resp, err
}
