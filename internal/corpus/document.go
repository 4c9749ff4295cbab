package corpus

import (
	"fmt"
	"path"

	"github.com/hyperjump/kaiwa/internal/extract"
)

// Document is a source file converted to paragraphs.
type Document struct {
	Slug       string
	Title      string
	Paragraphs []string
}

// ParseDocument extracts the text of raw, strips front-matter from text formats,
// and splits the body into paragraphs.
func ParseDocument(ex *extract.Extractor, raw RawDocument) (Document, error) {
	ext := path.Ext(raw.Path)
	body, err := ex.ExtractBytes(raw.Body, ext)
	if err != nil {
		return Document{}, fmt.Errorf("extract %s: %w", raw.Path, err)
	}

	doc := Document{Slug: Slug(raw.Path)}
	markdown := extract.IsMarkdown(ext)
	if markdown || ext == ".txt" {
		var fm FrontMatter
		body, fm = StripFrontMatter(body)
		doc.Title = fm.Title
	}
	doc.Paragraphs = Paragraphs(body, markdown)
	return doc, nil
}
