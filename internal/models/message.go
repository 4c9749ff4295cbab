// Package models defines core data structures for sessions, chunks, and retrieval results.
package models

import (
	"errors"
	"time"
)

// ErrValidation marks input that was rejected before any external call was made.
var ErrValidation = errors.New("validation error")

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one turn of a conversation. Seq is assigned by the session store
// and increases monotonically within a session.
type Message struct {
	Seq       int64     `json:"seq"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the server-side conversational memory for one identifier.
type Session struct {
	ID         string    `json:"id"`
	Messages   []Message `json:"messages"`
	Summary    string    `json:"summary,omitempty"`
	NextSeq    int64     `json:"next_seq"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// NewSession returns an empty session for id created at now.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:         id,
		Messages:   make([]Message, 0),
		NextSeq:    1,
		CreatedAt:  now,
		LastActive: now,
	}
}

// Expired reports whether the session has been idle longer than timeout.
// A non-positive timeout never expires.
func (s *Session) Expired(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	return now.Sub(s.LastActive) > timeout
}

// KeepLast drops everything but the most recent n messages.
func (s *Session) KeepLast(n int) {
	if n < 0 {
		n = 0
	}
	if len(s.Messages) <= n {
		return
	}
	kept := make([]Message, n)
	copy(kept, s.Messages[len(s.Messages)-n:])
	s.Messages = kept
}
