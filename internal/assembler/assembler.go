// Package assembler renders ranked search results into the plain-text
// context block handed to the answer synthesizer.
package assembler

import (
	"fmt"
	"strings"

	"forumrag/internal/domain"
)

// DefaultMaxChars is the per-post excerpt length used when none is given.
const DefaultMaxChars = 500

const ellipsis = "..."

// Assemble renders results in ranked order. Post text longer than maxChars
// runes is cut to maxChars runes and suffixed with "...".
func Assemble(results []domain.SearchResult, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "Post %d (by %s, %s):\n%s\n\n",
			i+1, r.Document.Author, r.Document.Timestamp, Excerpt(r.Document.Text, maxChars))
	}
	return b.String()
}

// Excerpt returns text unchanged when it fits in maxChars runes, otherwise
// its first maxChars runes followed by "...".
func Excerpt(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + ellipsis
}
