package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strict = bluemonday.StrictPolicy()

// SanitizeLabel turns caller-supplied free text into a plain single-line label.
// Entities are decoded before markup is stripped, so escaped tags are removed too.
// Angle brackets never survive. The result is NFC-normalised, whitespace runs
// collapse to one space and the output is capped at limit runes (no cap when limit <= 0).
func SanitizeLabel(value string, limit int) string {
	value = unescape(value)
	value = html.UnescapeString(strict.Sanitize(value))
	value = norm.NFC.String(value)
	value = strings.Map(func(r rune) rune {
		switch {
		case r == '<' || r == '>':
			return -1
		case unicode.IsControl(r):
			return ' '
		}
		return r
	}, value)
	value = strings.Join(strings.Fields(value), " ")
	if limit > 0 {
		if runes := []rune(value); len(runes) > limit {
			value = strings.TrimSpace(string(runes[:limit]))
		}
	}
	return value
}

// unescape decodes nested entity escaping, bounded to a few rounds.
func unescape(value string) string {
	for i := 0; i < 3; i++ {
		decoded := html.UnescapeString(value)
		if decoded == value {
			break
		}
		value = decoded
	}
	return value
}
