package utils

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var textPolicy = bluemonday.StrictPolicy()

// SanitizeText strips all markup, trims whitespace and truncates to maxRunes (0 = no limit).
func SanitizeText(input string, maxRunes int) string {
	out := html.UnescapeString(textPolicy.Sanitize(input))
	out = strings.TrimSpace(out)
	if maxRunes > 0 && utf8.RuneCountInString(out) > maxRunes {
		r := []rune(out)
		out = strings.TrimSpace(string(r[:maxRunes]))
	}
	return out
}
