package web

import (
	"html"
	"regexp"
	"strings"
)

var (
	boundaryPattern   = regexp.MustCompile(`(?i)<br\s*/?>|</(?:tr|li|p|div|h[1-6]|dd|dt|pre)>|\r?\n`)
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	scriptPattern     = regexp.MustCompile(`(?is)<(script|style)\b.*?</(script|style)>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Segments reduces an HTML or plain-text body to trimmed lines of text. Table
// rows, list items, paragraphs and line breaks each end a segment; remaining
// tags are dropped and entities decoded.
func Segments(body string) []string {
	body = scriptPattern.ReplaceAllString(body, " ")
	parts := boundaryPattern.Split(body, -1)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		text := tagPattern.ReplaceAllString(part, " ")
		text = html.UnescapeString(text)
		text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}
