package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kaiwa/internal/chat"
	"github.com/hyperjump/kaiwa/internal/corpus"
	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/models"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteAnswer_text(t *testing.T) {
	answer := chat.Answer{
		Response: "Herons wade at dawn.\n",
		Sources: []models.Source{
			{Slug: "journal/river", ChunkIndex: 1, Type: models.DocTypeJournal, Distance: 0.12},
		},
		Model: "gemini-2.5-flash",
	}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, answer, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"Herons wade at dawn.", "Sources:", `journal entry "journal/river" (part 2`, "model: gemini-2.5-flash"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteAnswer_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, chat.Answer{Response: "hi", SessionID: "abc"}, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded["response"] != "hi" || decoded["sessionId"] != "abc" {
		t.Errorf("decoded = %v", decoded)
	}
	if sources, ok := decoded["sources"].([]any); !ok || len(sources) != 0 {
		t.Errorf("sources should be an empty array, got %v", decoded["sources"])
	}
}

func TestWriteSearchResults_text(t *testing.T) {
	hits := []*keyword.Result{
		{Slug: "books/sea", ChunkIndex: 0, Score: 1.5, Snippet: "The <mark>lighthouse</mark> keeper"},
	}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, "lighthouse", hits, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{`Found 1 results for "lighthouse"`, "Rank: 1", "book chapter", "Slug: books/sea (part 1)", "keeper"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteSearchResults_JSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, "nothing", nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded SearchOutput
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Query != "nothing" || decoded.Results == nil || len(decoded.Results) != 0 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteReindexStats(t *testing.T) {
	stats := corpus.Stats{Documents: 4, Skipped: 1, Chunks: 9, Duration: 1250 * time.Millisecond}

	var text bytes.Buffer
	if err := WriteReindexStats(&text, stats, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text.String(), "Indexed 4 documents into 9 chunks") || !strings.Contains(text.String(), "1 skipped") {
		t.Errorf("text output = %q", text.String())
	}

	var js bytes.Buffer
	if err := WriteReindexStats(&js, stats, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]float64
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["duration_ms"] != 1250 || decoded["chunks"] != 9 {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestWriteStatus(t *testing.T) {
	fields := []StatusField{{"chunks", 12}, {"sessions", 3}}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, fields, OutputText); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "chunks:") || !strings.HasSuffix(lines[1], "3") {
		t.Errorf("status lines = %q", lines)
	}
}
