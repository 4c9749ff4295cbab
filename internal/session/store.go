// Package session keeps per-identifier conversational memory across requests.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/storage"
)

// Store is the session store. All mutations of one id are serialized in-process
// by a keyed mutex and across processes by immediate SQLite transactions.
type Store struct {
	records     storage.SessionRecords
	compactor   *Compactor
	idleTimeout time.Duration
	locks       *keyedMutex
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store over records. Sessions idle longer than idleTimeout
// are treated as absent.
func NewStore(records storage.SessionRecords, compactor *Compactor, idleTimeout time.Duration, opts ...Option) *Store {
	s := &Store{
		records:     records,
		compactor:   compactor,
		idleTimeout: idleTimeout,
		locks:       newKeyedMutex(),
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.compactor == nil {
		s.compactor = NewCompactor(nil, CompactorConfig{}, s.logger)
	}
	return s
}

// IdleTimeout returns the inactivity period after which sessions expire.
func (s *Store) IdleTimeout() time.Duration {
	return s.idleTimeout
}

// Resolve returns the live session for id, or a fresh empty one.
func (s *Store) Resolve(ctx context.Context, id string) *models.Session {
	rec, err := s.records.GetSession(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("session read failed; treating as absent", zap.String("session", id), zap.Error(err))
		}
		return models.NewSession(id, s.now())
	}
	return s.live(id, rec)
}

// live decodes rec, falling back to a fresh session when it is corrupt or expired.
func (s *Store) live(id string, rec *storage.SessionRecord) *models.Session {
	now := s.now()
	if rec == nil {
		return models.NewSession(id, now)
	}
	sess, err := decode(rec)
	if err != nil {
		s.logger.Warn("session payload unreadable; treating as absent", zap.String("session", id), zap.Error(err))
		return models.NewSession(id, now)
	}
	if sess.Expired(now, s.idleTimeout) {
		return models.NewSession(id, now)
	}
	return sess
}

// History returns the current window of id without system-role messages.
func (s *Store) History(ctx context.Context, id string) []models.Message {
	return Visible(s.Resolve(ctx, id).Messages)
}

// Visible filters out system-role messages.
func Visible(messages []models.Message) []models.Message {
	out := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role != models.RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// Append adds a message to id, compacting the session if needed, and returns
// the stored message. The summarizer call, when one is needed, runs after the
// append is committed and its result is written in a second transaction.
func (s *Store) Append(ctx context.Context, id string, role models.Role, content string) (models.Message, error) {
	if !role.Valid() {
		return models.Message{}, fmt.Errorf("%w: unknown role %q", models.ErrValidation, role)
	}
	if id == "" {
		return models.Message{}, fmt.Errorf("%w: empty session id", models.ErrValidation)
	}

	unlock := s.locks.lock(id)
	defer unlock()

	var (
		msg      models.Message
		prefix   []models.Message
		previous string
	)
	err := s.records.UpdateSession(ctx, id, func(cur *storage.SessionRecord) (*storage.SessionRecord, error) {
		sess := s.live(id, cur)
		now := s.now()
		msg = models.Message{Seq: sess.NextSeq, Role: role, Content: content, Timestamp: now}
		sess.NextSeq++
		sess.Messages = append(sess.Messages, msg)
		sess.LastActive = now
		prefix = s.compactor.Trim(sess)
		previous = sess.Summary
		return encode(sess)
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("append to session %s: %w", id, err)
	}

	if len(prefix) > 0 {
		s.fold(ctx, id, previous, prefix)
	}
	return msg, nil
}

// fold summarizes prefix and stores the new summary. Failures keep the old
// summary; the prefix has already been dropped.
func (s *Store) fold(ctx context.Context, id, previous string, prefix []models.Message) {
	summary, err := s.compactor.Summarize(ctx, previous, prefix)
	if err != nil {
		s.logger.Warn("session summarization failed; keeping previous summary",
			zap.String("session", id), zap.Int("dropped", len(prefix)), zap.Error(err))
		return
	}

	err = s.records.UpdateSession(ctx, id, func(cur *storage.SessionRecord) (*storage.SessionRecord, error) {
		if cur == nil {
			return nil, nil
		}
		sess, err := decode(cur)
		if err != nil {
			return cur, nil
		}
		sess.Summary = summary
		return encode(sess)
	})
	if err != nil {
		s.logger.Warn("failed to store session summary", zap.String("session", id), zap.Error(err))
		return
	}
	s.logger.Debug("session compacted", zap.String("session", id), zap.Int("dropped", len(prefix)))
}

// Retract removes the message with sequence number seq from id if it is still present.
func (s *Store) Retract(ctx context.Context, id string, seq int64) error {
	unlock := s.locks.lock(id)
	defer unlock()

	return s.records.UpdateSession(ctx, id, func(cur *storage.SessionRecord) (*storage.SessionRecord, error) {
		if cur == nil {
			return nil, nil
		}
		sess, err := decode(cur)
		if err != nil {
			return cur, nil
		}
		kept := sess.Messages[:0:0]
		for _, m := range sess.Messages {
			if m.Seq != seq {
				kept = append(kept, m)
			}
		}
		if len(kept) == len(sess.Messages) {
			return cur, nil
		}
		sess.Messages = kept
		return encode(sess)
	})
}

// Reset deletes the session for id. Resetting an absent session is not an error.
func (s *Store) Reset(ctx context.Context, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()

	if err := s.records.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("reset session %s: %w", id, err)
	}
	return nil
}

// SweepExpired deletes sessions idle past the timeout and returns how many were removed.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	if s.idleTimeout <= 0 {
		return 0, nil
	}
	n, err := s.records.DeleteSessionsIdleBefore(ctx, s.now().Add(-s.idleTimeout))
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return int(n), nil
}

// RunSweeper calls SweepExpired every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				s.logger.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("expired sessions removed", zap.Int("count", n))
			}
		}
	}
}

// Count returns the number of stored sessions, live or not yet swept.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.records.CountSessions(ctx)
}
