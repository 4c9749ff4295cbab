package models

import "strings"

// Chunk is a bounded slice of a source document, embedded independently for retrieval.
// (Slug, Index) is unique within one index generation.
type Chunk struct {
	Slug      string    `json:"slug"`
	Index     int       `json:"chunk_index"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
}

// Hit is one retrieved chunk and its distance from the query (lower is closer).
type Hit struct {
	Chunk    *Chunk
	Distance float64
}

// RetrievalResult is a ranked list of hits, ascending by distance. Rank is the list position.
type RetrievalResult struct {
	Hits []Hit
}

// Empty reports whether the result carries no hits.
func (r RetrievalResult) Empty() bool {
	return len(r.Hits) == 0
}

// DocType is the kind of document a chunk came from, inferred from its slug.
type DocType string

const (
	DocTypeJournal   DocType = "journal entry"
	DocTypeBook      DocType = "book chapter"
	DocTypeReference DocType = "reference article"
	DocTypeDocument  DocType = "document"
)

// DocTypeForSlug infers the document type from the first segment of a slug.
// Both "journal/2024-01-02" and "journal-2024-01-02" are journal entries.
func DocTypeForSlug(slug string) DocType {
	s := strings.ToLower(strings.TrimLeft(slug, "/"))
	prefix := s
	if i := strings.IndexAny(s, "/-_"); i >= 0 {
		prefix = s[:i]
	}
	switch prefix {
	case "journal", "journals":
		return DocTypeJournal
	case "book", "books":
		return DocTypeBook
	case "wiki", "reference", "references":
		return DocTypeReference
	default:
		return DocTypeDocument
	}
}

// Source describes where a grounding passage came from, for API responses.
type Source struct {
	Slug       string  `json:"slug"`
	ChunkIndex int     `json:"chunkIndex"`
	Type       DocType `json:"type"`
	Distance   float64 `json:"distance"`
}
