package fluency

import (
	"strings"
	"unicode"
)

// Normalize lower-cases text, drops every rune that is not a letter, a number
// or whitespace, and splits the rest on whitespace. Punctuation is removed
// without leaving a gap, so "don't" becomes "dont". Combining marks are not
// letters and are dropped too, including Indic vowel signs.
// Empty or punctuation-only text yields an empty sequence.
func Normalize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsNumber(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, text)
	return strings.Fields(cleaned)
}
