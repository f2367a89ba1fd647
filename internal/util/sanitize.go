package util

import (
	"strings"
	"unicode"

	"go-marketplace/pkg/apierror"
)

// SanitizeText cleans user supplied catalog text. Control and invisible
// characters are dropped (newlines and tabs survive only when multiline is
// set), inner whitespace runs collapse on single-line values, and the result is
// truncated to maxRunes.
func SanitizeText(value string, field string, maxRunes int, multiline bool) (string, error) {
	trimmed := strings.TrimSpace(value)
	if strings.Contains(trimmed, "\x00") {
		return "", apierror.Validation(field+" contains null bytes", field)
	}

	builder := strings.Builder{}
	builder.Grow(len(trimmed))

	for _, char := range trimmed {
		if multiline && (char == '\n' || char == '\t') {
			builder.WriteRune(char)
			continue
		}
		if unicode.IsControl(char) || isInvisibleUnicode(char) {
			continue
		}

		builder.WriteRune(char)
	}

	cleaned := builder.String()
	if !multiline {
		cleaned = strings.Join(strings.Fields(cleaned), " ")
	}
	cleaned = strings.TrimSpace(cleaned)

	// Truncate by runes (not bytes) to avoid splitting multi-byte characters.
	if maxRunes > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxRunes {
			cleaned = strings.TrimSpace(string(runes[:maxRunes]))
		}
	}

	return cleaned, nil
}

// isInvisibleUnicode returns true for zero-width, formatting, and other
// invisible Unicode characters.
func isInvisibleUnicode(r rune) bool {
	switch r {
	case
		'\u200B', // Zero-Width Space
		'\u200C', // Zero-Width Non-Joiner
		'\u200D', // Zero-Width Joiner
		'\u200E', // Left-to-Right Mark
		'\u200F', // Right-to-Left Mark
		'\u2060', // Word Joiner
		'\uFEFF', // Zero-Width No-Break Space / BOM
		'\uFFF9', // Interlinear Annotation Anchor
		'\uFFFA', // Interlinear Annotation Separator
		'\uFFFB': // Interlinear Annotation Terminator
		return true
	}

	return unicode.Is(unicode.Cf, r)
}
