// Package cli renders command output for the kaiwa CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/kaiwa/internal/chat"
	"github.com/hyperjump/kaiwa/internal/corpus"
	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const (
	rule           = "─────────────────────────────────────────────────────────"
	snippetDisplay = 200
)

// SearchResult is one full-text hit as printed by the search command.
type SearchResult struct {
	Slug       string         `json:"slug"`
	ChunkIndex int            `json:"chunkIndex"`
	Type       models.DocType `json:"type"`
	Score      float64        `json:"score"`
	Snippet    string         `json:"snippet"`
}

// SearchOutput is the search command's JSON document.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (supported: text, json)", s)
}

// WriteAnswer writes a reply and its sources.
func WriteAnswer(w io.Writer, answer chat.Answer, format OutputFormat) error {
	if format == OutputJSON {
		if answer.Sources == nil {
			answer.Sources = []models.Source{}
		}
		return writeJSON(w, answer)
	}
	fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(answer.Response))
	if len(answer.Sources) > 0 {
		fmt.Fprintf(w, "\nSources:\n")
		for i, s := range answer.Sources {
			fmt.Fprintf(w, "  [%d] %s %q (part %d, distance %.4f)\n", i+1, s.Type, s.Slug, s.ChunkIndex+1, s.Distance)
		}
	}
	if answer.Model != "" {
		fmt.Fprintf(w, "\n(model: %s)\n", answer.Model)
	}
	return nil
}

// WriteSearchResults writes full-text search hits.
func WriteSearchResults(w io.Writer, query string, hits []*keyword.Result, format OutputFormat) error {
	out := SearchOutput{Query: query, Results: make([]SearchResult, 0, len(hits))}
	for _, h := range hits {
		out.Results = append(out.Results, SearchResult{
			Slug:       h.Slug,
			ChunkIndex: h.ChunkIndex,
			Type:       models.DocTypeForSlug(h.Slug),
			Score:      h.Score,
			Snippet:    h.Snippet,
		})
	}
	if format == OutputJSON {
		return writeJSON(w, out)
	}

	fmt.Fprintf(w, "\nFound %d results for %q\n\n", len(out.Results), query)
	for i, r := range out.Results {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | %s\n", i+1, r.Score, r.Type)
		fmt.Fprintf(w, "Slug: %s (part %d)\n", r.Slug, r.ChunkIndex+1)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(r.Snippet, snippetDisplay))
	}
	return nil
}

// WriteReindexStats writes the outcome of a re-index run.
func WriteReindexStats(w io.Writer, stats corpus.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]any{
			"documents":   stats.Documents,
			"skipped":     stats.Skipped,
			"chunks":      stats.Chunks,
			"duration_ms": stats.Duration.Milliseconds(),
		})
	}
	fmt.Fprintf(w, "Indexed %d documents into %d chunks in %s", stats.Documents, stats.Chunks, stats.Duration.Round(time.Millisecond))
	if stats.Skipped > 0 {
		fmt.Fprintf(w, " (%d skipped)", stats.Skipped)
	}
	fmt.Fprintln(w)
	return nil
}

// WriteStatus writes key/value status fields in a stable order.
func WriteStatus(w io.Writer, fields []StatusField, format OutputFormat) error {
	if format == OutputJSON {
		m := make(map[string]any, len(fields))
		for _, f := range fields {
			m[f.Key] = f.Value
		}
		return writeJSON(w, m)
	}
	for _, f := range fields {
		fmt.Fprintf(w, "%-18s %v\n", f.Key+":", f.Value)
	}
	return nil
}

// StatusField is one line of status output.
type StatusField struct {
	Key   string
	Value any
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
