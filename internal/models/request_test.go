package models

import (
	"errors"
	"strings"
	"testing"
)

func TestChatRequest_Validate(t *testing.T) {
	tests := []struct {
		name     string
		req      *ChatRequest
		wantErr  bool
		wantMode Mode
	}{
		{"empty message", &ChatRequest{Message: "   "}, true, ""},
		{"defaults to conversation", &ChatRequest{Message: "hi"}, false, ModeConversation},
		{"query mode", &ChatRequest{Message: "hi", Mode: ModeQuery}, false, ModeQuery},
		{"unknown mode", &ChatRequest{Message: "hi", Mode: "shout"}, true, ""},
		{"too long", &ChatRequest{Message: strings.Repeat("a", 11)}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(10)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
			if !tt.wantErr && tt.req.Mode != tt.wantMode {
				t.Errorf("mode = %q, want %q", tt.req.Mode, tt.wantMode)
			}
		})
	}
}

func TestChatRequest_ValidateTrims(t *testing.T) {
	req := &ChatRequest{Message: "  hello  "}
	if err := req.Validate(0); err != nil {
		t.Fatal(err)
	}
	if req.Message != "hello" {
		t.Errorf("got %q", req.Message)
	}
}

func TestDocTypeForSlug(t *testing.T) {
	tests := []struct {
		slug string
		want DocType
	}{
		{"journal/2024-01-02", DocTypeJournal},
		{"journal-2024-01-02", DocTypeJournal},
		{"books/dune/chapter-1", DocTypeBook},
		{"wiki/go-channels", DocTypeReference},
		{"reference_sqlite", DocTypeReference},
		{"about", DocTypeDocument},
		{"", DocTypeDocument},
	}
	for _, tt := range tests {
		if got := DocTypeForSlug(tt.slug); got != tt.want {
			t.Errorf("DocTypeForSlug(%q) = %q, want %q", tt.slug, got, tt.want)
		}
	}
}

func TestSession_KeepLast(t *testing.T) {
	s := &Session{}
	for i := int64(1); i <= 5; i++ {
		s.Messages = append(s.Messages, Message{Seq: i, Role: RoleUser})
	}
	s.KeepLast(2)
	if len(s.Messages) != 2 || s.Messages[0].Seq != 4 {
		t.Fatalf("KeepLast: got %+v", s.Messages)
	}
	s.KeepLast(10)
	if len(s.Messages) != 2 {
		t.Errorf("KeepLast larger than len should be a no-op")
	}
}
