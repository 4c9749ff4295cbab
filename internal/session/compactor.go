package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/completion"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

const summarizerSystem = `You maintain a running summary of a conversation between a user and an assistant.
Merge the earlier summary (if any) with the new transcript excerpt into one short paragraph.
Keep names, facts, decisions and open questions. Do not invent anything. Reply with the summary only.`

// Compactor bounds a session to a window of recent messages and folds older
// messages into a running summary once the transcript grows past a size threshold.
type Compactor struct {
	completer completion.Completer
	model     string
	window    int
	threshold int
	maxTokens int
	logger    *zap.Logger
}

// CompactorConfig holds compaction limits.
type CompactorConfig struct {
	// Window is the number of most recent messages kept verbatim.
	Window int
	// SizeThreshold is the transcript size in words above which dropped messages are summarized.
	SizeThreshold int
	// Model names the summarizer model; empty uses the completer default.
	Model     string
	MaxTokens int
}

// NewCompactor creates a compactor. A nil completer disables summarization;
// sessions are still truncated to the window.
func NewCompactor(completer completion.Completer, cfg CompactorConfig, logger *zap.Logger) *Compactor {
	if cfg.Window <= 0 {
		cfg.Window = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compactor{
		completer: completer,
		model:     cfg.Model,
		window:    cfg.Window,
		threshold: cfg.SizeThreshold,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}
}

// Window returns the number of messages kept verbatim.
func (c *Compactor) Window() int {
	return c.window
}

// Size returns the word count of every message plus the summary.
func Size(s *models.Session) int {
	n := utils.WordCount(s.Summary)
	for _, m := range s.Messages {
		n += utils.WordCount(m.Content)
	}
	return n
}

// Trim cuts s down to the window. When the transcript was over the size
// threshold, the dropped messages are returned for summarization; otherwise
// the result is nil.
func (c *Compactor) Trim(s *models.Session) []models.Message {
	if len(s.Messages) <= c.window {
		return nil
	}
	oversized := Size(s) > c.threshold
	cut := len(s.Messages) - c.window
	prefix := make([]models.Message, cut)
	copy(prefix, s.Messages[:cut])
	s.KeepLast(c.window)

	if !oversized || c.completer == nil {
		return nil
	}
	return prefix
}

// Summarize folds prefix into previous and returns the new summary.
func (c *Compactor) Summarize(ctx context.Context, previous string, prefix []models.Message) (string, error) {
	if c.completer == nil {
		return "", fmt.Errorf("summarize: %w", completion.ErrNotConfigured)
	}
	resp, err := c.completer.Complete(ctx, completion.Request{
		Model:     c.model,
		System:    summarizerSystem,
		Turns:     []completion.Turn{{Role: completion.RoleUser, Content: transcript(previous, prefix)}},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return "", fmt.Errorf("summarize: empty summary")
	}
	return summary, nil
}

func transcript(previous string, prefix []models.Message) string {
	var b strings.Builder
	if previous != "" {
		b.WriteString("Earlier summary:\n")
		b.WriteString(previous)
		b.WriteString("\n\n")
	}
	b.WriteString("Transcript:\n")
	for _, m := range prefix {
		switch m.Role {
		case models.RoleUser:
			b.WriteString("User: ")
		case models.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("Note: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
