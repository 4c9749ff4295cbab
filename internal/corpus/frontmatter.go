package corpus

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// FrontMatter holds the keys read from a document's leading YAML block.
type FrontMatter struct {
	Title string `yaml:"title"`
}

// StripFrontMatter removes a leading "---" delimited YAML block. A block that
// fails to parse is still removed; only an unterminated block is left in place.
func StripFrontMatter(text string) (string, FrontMatter) {
	var fm FrontMatter
	rest, ok := cutDelimiter(strings.TrimPrefix(text, "\ufeff"))
	if !ok {
		return text, fm
	}

	var header strings.Builder
	for rest != "" {
		line, tail, _ := strings.Cut(rest, "\n")
		rest = tail
		if trimmed := strings.TrimRight(line, " \t\r"); trimmed == "---" || trimmed == "..." {
			if err := yaml.Unmarshal([]byte(header.String()), &fm); err != nil {
				fm = FrontMatter{}
			}
			return strings.TrimLeft(rest, "\r\n"), fm
		}
		header.WriteString(line)
		header.WriteByte('\n')
	}
	return text, FrontMatter{}
}

func cutDelimiter(text string) (string, bool) {
	line, rest, found := strings.Cut(text, "\n")
	if !found || strings.TrimRight(line, " \t\r") != "---" {
		return "", false
	}
	return rest, true
}
