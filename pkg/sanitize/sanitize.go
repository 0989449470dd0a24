package sanitize

import (
	"strings"
	"unicode"
)

// MessageContent normalizes user-supplied message text: trims
// surrounding whitespace and strips control characters other than
// newline and tab. Content is stored verbatim otherwise; rendering
// concerns belong to clients.
func MessageContent(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// AttachmentKey normalizes an object-store key: trims whitespace,
// removes path traversal sequences and control characters.
func AttachmentKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.ReplaceAll(key, "../", "")
	key = strings.ReplaceAll(key, "..\\", "")

	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// WithinLength reports whether the string length is within bounds.
func WithinLength(input string, minLen, maxLen int) bool {
	return len(input) >= minLen && len(input) <= maxLen
}
