package session

import (
	"encoding/json"
	"fmt"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/storage"
)

const payloadVersion = 1

// envelope is the JSON form of a session stored in the sessions table.
type envelope struct {
	Version  int              `json:"version"`
	Messages []models.Message `json:"messages"`
	Summary  string           `json:"summary,omitempty"`
	NextSeq  int64            `json:"next_seq"`
}

func encode(s *models.Session) (*storage.SessionRecord, error) {
	payload, err := json.Marshal(envelope{
		Version:  payloadVersion,
		Messages: s.Messages,
		Summary:  s.Summary,
		NextSeq:  s.NextSeq,
	})
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return &storage.SessionRecord{
		ID:         s.ID,
		Payload:    payload,
		CreatedAt:  s.CreatedAt,
		LastActive: s.LastActive,
	}, nil
}

func decode(rec *storage.SessionRecord) (*models.Session, error) {
	var env envelope
	if err := json.Unmarshal(rec.Payload, &env); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", rec.ID, err)
	}
	if env.Version != payloadVersion {
		return nil, fmt.Errorf("decode session %s: unsupported payload version %d", rec.ID, env.Version)
	}
	s := &models.Session{
		ID:         rec.ID,
		Messages:   env.Messages,
		Summary:    env.Summary,
		NextSeq:    env.NextSeq,
		CreatedAt:  rec.CreatedAt,
		LastActive: rec.LastActive,
	}
	if s.Messages == nil {
		s.Messages = make([]models.Message, 0)
	}
	// Repair a sequence counter that fell behind its messages.
	for _, m := range s.Messages {
		if m.Seq >= s.NextSeq {
			s.NextSeq = m.Seq + 1
		}
	}
	if s.NextSeq < 1 {
		s.NextSeq = 1
	}
	return s, nil
}
