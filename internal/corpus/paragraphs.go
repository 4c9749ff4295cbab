package corpus

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var blankLine = regexp.MustCompile(`\n[ \t\r]*\n`)

// Paragraphs splits document text into paragraph units. Markdown yields one
// unit per leaf block; other text splits on blank lines.
func Paragraphs(body string, markdown bool) []string {
	if markdown {
		return markdownParagraphs([]byte(body))
	}
	var out []string
	for _, p := range blankLine.Split(strings.ReplaceAll(body, "\r\n", "\n"), -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func markdownParagraphs(source []byte) []string {
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var out []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindParagraph, ast.KindTextBlock, ast.KindHeading:
			if p := strings.TrimSpace(joinLines(n, source, " ")); p != "" {
				out = append(out, p)
			}
			return ast.WalkSkipChildren, nil
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			if p := strings.TrimRight(joinLines(n, source, ""), "\n"); strings.TrimSpace(p) != "" {
				out = append(out, p)
			}
			return ast.WalkSkipChildren, nil
		case ast.KindHTMLBlock, ast.KindThematicBreak:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return out
}

// joinLines concatenates the raw source lines of a block. Inline markup is kept.
func joinLines(n ast.Node, source []byte, sep string) string {
	lines := n.Lines()
	var b strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		line := string(seg.Value(source))
		if sep != "" {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString(sep)
			}
		}
		b.WriteString(line)
	}
	return b.String()
}
