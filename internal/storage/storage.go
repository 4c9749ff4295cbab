// Package storage defines persistence for sessions and indexed corpus chunks.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/kaiwa/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// SessionRecord is the persisted form of one session. Payload is opaque to storage.
type SessionRecord struct {
	ID         string
	Payload    []byte
	CreatedAt  time.Time
	LastActive time.Time
}

// UpdateFunc receives the current record (nil when absent) and returns the
// record to write. Returning a nil record deletes the row.
type UpdateFunc func(current *SessionRecord) (*SessionRecord, error)

// SessionRecords persists session payloads.
type SessionRecords interface {
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	// UpdateSession runs fn inside a single write transaction.
	UpdateSession(ctx context.Context, id string, fn UpdateFunc) error
	DeleteSession(ctx context.Context, id string) error
	DeleteSessionsIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountSessions(ctx context.Context) (int64, error)
}

// IndexMeta describes the committed chunk generation.
type IndexMeta struct {
	Dimensions  int
	GeneratedAt time.Time
}

// ChunkRecords persists the chunk set backing the vector index.
type ChunkRecords interface {
	// ReplaceChunks swaps the whole chunk set in one transaction.
	ReplaceChunks(ctx context.Context, chunks []*models.Chunk, dimensions int) error
	ListChunks(ctx context.Context) ([]*models.Chunk, error)
	CountChunks(ctx context.Context) (int64, error)
	IndexMeta(ctx context.Context) (IndexMeta, error)
}

// Storage combines session and chunk persistence.
type Storage interface {
	SessionRecords
	ChunkRecords
	Close() error
}
