// Package sanitize cleans claimant-supplied text before it is stored or
// echoed back in the conversation.
package sanitize

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// MaxLength bounds a single free-text value.
const MaxLength = 4000

var strict = bluemonday.StrictPolicy()

// Text strips markup and control characters, collapses runs of blank
// lines and trims the result to MaxLength runes.
func Text(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = html.UnescapeString(strict.Sanitize(s))
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > MaxLength {
		s = strings.TrimSpace(string(r[:MaxLength]))
	}
	return s
}
