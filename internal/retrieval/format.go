package retrieval

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kaiwa/internal/models"
)

const sourceSeparator = "\n\n---\n\n"

const groundingPreamble = `The following passages come from the site's own writing. Use them to answer.
Synthesize the relevant points in your own words; do not quote passages verbatim or list them back.
If the passages do not cover the question, say so and answer from general knowledge.`

// FormatContext renders hits as numbered source blocks separated by horizontal rules.
func FormatContext(result models.RetrievalResult) string {
	if result.Empty() {
		return ""
	}
	blocks := make([]string, len(result.Hits))
	for i, h := range result.Hits {
		blocks[i] = fmt.Sprintf("[Source %d: %s %q (part %d)]\n%s",
			i+1, models.DocTypeForSlug(h.Chunk.Slug), h.Chunk.Slug, h.Chunk.Index+1, h.Chunk.Content)
	}
	return strings.Join(blocks, sourceSeparator)
}

// GroundingInstructions returns the formatted context preceded by instructions
// to synthesize from it. An empty result gives an empty string.
func GroundingInstructions(result models.RetrievalResult) string {
	ctx := FormatContext(result)
	if ctx == "" {
		return ""
	}
	return groundingPreamble + "\n\n" + ctx
}

// Sources lists where each hit came from.
func Sources(result models.RetrievalResult) []models.Source {
	out := make([]models.Source, len(result.Hits))
	for i, h := range result.Hits {
		out[i] = models.Source{
			Slug:       h.Chunk.Slug,
			ChunkIndex: h.Chunk.Index,
			Type:       models.DocTypeForSlug(h.Chunk.Slug),
			Distance:   h.Distance,
		}
	}
	return out
}
