package rulexml

import (
	"html"
	"unicode/utf8"
)

// Persisted error messages may later be rendered to an operator, so they are
// escaped and bounded before storage.
const maxErrorMessageLen = 500

func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}
	escaped := html.EscapeString(msg)
	if len(escaped) > maxErrorMessageLen {
		cut := maxErrorMessageLen
		// Never split a multi-byte rune.
		for cut > 0 && !utf8.RuneStart(escaped[cut]) {
			cut--
		}
		escaped = escaped[:cut]
	}
	return escaped
}
