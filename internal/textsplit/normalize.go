// Package textsplit turns raw document text into ordered sections and
// fixed-size overlapping chunks. Nothing in here returns an error: ingestion
// has to survive arbitrary uploaded content.
package textsplit

import (
	"strings"
	"unicode"
)

// Normalize collapses every whitespace run, newlines included, into a single
// space and trims both ends.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(text))
	pendingSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			pendingSpace = sb.Len() > 0
			continue
		}
		if pendingSpace {
			sb.WriteByte(' ')
			pendingSpace = false
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
