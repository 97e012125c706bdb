// Package extract turns rendered markup into clean text: a sanitizer, a
// readability-based article extractor, and a heuristic selector fallback.
package extract

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize trims the text and collapses every whitespace run to one space.
// Idempotent: normalizing already-normalized text is a no-op.
func Normalize(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}
