package extract

import (
	"strings"
	"unicode/utf8"
)

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// extractPlain decodes text and markdown corpus files. Line endings become "\n"
// so front-matter and paragraph splitting see one convention; bytes that are not
// UTF-8 are replaced with U+FFFD.
func extractPlain(content []byte) (string, error) {
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\ufffd")
	}
	return lineEndings.Replace(text), nil
}
