package completion

import (
	"context"
	"sync"
)

// Scripted is a Completer for tests and offline runs. Replies are taken from
// per-model queues; a model without a queue gets the Default reply.
type Scripted struct {
	// Default is returned when no scripted reply is queued. Empty means echo the last user turn.
	Default string

	mu       sync.Mutex
	replies  map[string][]scriptedReply
	requests []Request
}

type scriptedReply struct {
	text string
	err  error
}

// NewScripted returns an empty Scripted completer.
func NewScripted() *Scripted {
	return &Scripted{replies: make(map[string][]scriptedReply)}
}

// Reply queues a successful reply for model.
func (s *Scripted) Reply(model, text string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[model] = append(s.replies[model], scriptedReply{text: text})
	return s
}

// Fail queues an error for model.
func (s *Scripted) Fail(model string, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[model] = append(s.replies[model], scriptedReply{err: err})
	return s
}

// Requests returns a copy of every request received, in order.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Complete pops the next reply for req.Model.
func (s *Scripted) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)

	if q := s.replies[req.Model]; len(q) > 0 {
		next := q[0]
		s.replies[req.Model] = q[1:]
		if next.err != nil {
			return Response{}, next.err
		}
		return Response{Text: next.text, Model: req.Model}, nil
	}

	text := s.Default
	if text == "" {
		for i := len(req.Turns) - 1; i >= 0; i-- {
			if req.Turns[i].Role == RoleUser {
				text = "echo: " + req.Turns[i].Content
				break
			}
		}
	}
	return Response{Text: text, Model: req.Model}, nil
}
