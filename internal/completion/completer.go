// Package completion generates assistant replies from a language model.
package completion

import (
	"context"
	"errors"
)

// ErrNotConfigured reports a provider that cannot serve requests at all, such as
// a missing API key or model name. Callers must not retry it.
var ErrNotConfigured = errors.New("completion provider not configured")

// Turn roles understood by providers.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of the prompt transcript.
type Turn struct {
	Role    string
	Content string
}

// Request is a single completion call.
type Request struct {
	// Model overrides the provider's default model when set.
	Model       string
	System      string
	Turns       []Turn
	MaxTokens   int
	Temperature float64
}

// Response is the generated text and the model that produced it.
type Response struct {
	Text  string
	Model string
}

// Completer produces a reply for a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

type unavailable struct {
	reason error
}

// Unavailable returns a completer that fails every request with reason, which
// should wrap ErrNotConfigured. It lets the server start without credentials.
func Unavailable(reason error) Completer {
	return unavailable{reason: reason}
}

func (u unavailable) Complete(ctx context.Context, req Request) (Response, error) {
	return Response{}, u.reason
}
