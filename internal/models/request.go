package models

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Mode selects how a chat request is handled.
type Mode string

const (
	// ModeConversation reads and writes the caller's session.
	ModeConversation Mode = "conversation"
	// ModeQuery is a stateless single-shot question.
	ModeQuery Mode = "query"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message      string `json:"message"`
	Mode         Mode   `json:"mode,omitempty"`
	ClearContext bool   `json:"clearContext,omitempty"`
}

// Validate trims the message, rejects empty or oversized input, and defaults the mode.
func (r *ChatRequest) Validate(maxChars int) error {
	msg, err := validateMessage(r.Message, maxChars)
	if err != nil {
		return err
	}
	r.Message = msg
	switch r.Mode {
	case "":
		r.Mode = ModeConversation
	case ModeConversation, ModeQuery:
	default:
		return fmt.Errorf("%w: mode must be %q or %q", ErrValidation, ModeConversation, ModeQuery)
	}
	return nil
}

// RAGRequest is the body of POST /rag.
type RAGRequest struct {
	Message string `json:"message"`
}

// Validate trims the message and rejects empty or oversized input.
func (r *RAGRequest) Validate(maxChars int) error {
	msg, err := validateMessage(r.Message, maxChars)
	if err != nil {
		return err
	}
	r.Message = msg
	return nil
}

func validateMessage(msg string, maxChars int) (string, error) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", fmt.Errorf("%w: message cannot be empty", ErrValidation)
	}
	if !utf8.ValidString(msg) {
		return "", fmt.Errorf("%w: message must be valid UTF-8", ErrValidation)
	}
	if maxChars > 0 && utf8.RuneCountInString(msg) > maxChars {
		return "", fmt.Errorf("%w: message exceeds %d characters", ErrValidation, maxChars)
	}
	return msg, nil
}
