// Package extract converts corpus files into plain text with blank lines between paragraphs.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"). Paragraph boundaries in
// the source format become blank lines in the output.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	default:
		// Markdown, text and unknown extensions are read as UTF-8.
		return extractPlain(content)
	}
}

// IsMarkdown reports whether files with ext are parsed as markdown.
func IsMarkdown(ext string) bool {
	switch strings.ToLower(ext) {
	case ".md", ".markdown", ".mdx":
		return true
	}
	return false
}
