package e2e

import (
	"strings"
	"testing"

	"github.com/hyperjump/kaiwa/internal/corpus"
	"github.com/hyperjump/kaiwa/internal/extract"
)

func TestBuildCorpus_OneQueryPerDocument(t *testing.T) {
	c := BuildCorpus()
	if len(c.Documents) == 0 || len(c.Documents) != len(c.TestCases) {
		t.Fatalf("documents=%d cases=%d", len(c.Documents), len(c.TestCases))
	}
	seen := make(map[string]bool)
	for i, d := range c.Documents {
		if seen[d.Slug()] {
			t.Errorf("duplicate slug %q", d.Slug())
		}
		seen[d.Slug()] = true
		if !strings.Contains(strings.ToLower(d.Content), strings.ToLower(c.TestCases[i].Query)) {
			t.Errorf("document %s does not contain its query %q", d.Path, c.TestCases[i].Query)
		}
	}
}

func TestSlugMatchesReindexer(t *testing.T) {
	for _, d := range BuildCorpus().Documents {
		if got := corpus.Slug(d.Path); got != d.Slug() {
			t.Errorf("corpus.Slug(%q) = %q, want %q", d.Path, got, d.Slug())
		}
	}
}

func TestEncodeDocument_Extractable(t *testing.T) {
	ex := extract.NewExtractor()
	for _, d := range BuildCorpus().Documents {
		body, err := EncodeDocument(d)
		if err != nil {
			t.Fatalf("EncodeDocument(%s): %v", d.Path, err)
		}
		raw := corpus.RawDocument{Path: d.Path, Body: body}
		doc, err := corpus.ParseDocument(ex, raw)
		if err != nil {
			t.Fatalf("ParseDocument(%s): %v", d.Path, err)
		}
		joined := strings.Join(doc.Paragraphs, "\n")
		if !strings.Contains(joined, d.Content) {
			t.Errorf("%s: paragraphs %q do not contain content", d.Path, doc.Paragraphs)
		}
		if strings.HasSuffix(d.Path, ".md") && doc.Title != d.Title {
			t.Errorf("%s: title = %q, want %q", d.Path, doc.Title, d.Title)
		}
	}
}
