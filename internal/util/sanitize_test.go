package util

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestSanitizeText(t *testing.T) {
	t.Parallel()

	t.Run("collapses whitespace on single-line values", func(t *testing.T) {
		actual, err := SanitizeText("  Walnut \t  desk\nlamp ", "name", 0, false)
		require.NoError(t, err)
		require.Equal(t, "Walnut desk lamp", actual)
	})

	t.Run("keeps newlines on multiline values", func(t *testing.T) {
		actual, err := SanitizeText("Line one\nLine two\r", "description", 0, true)
		require.NoError(t, err)
		require.Equal(t, "Line one\nLine two", actual)
	})

	t.Run("rejects null bytes", func(t *testing.T) {
		_, err := SanitizeText("bad\x00name", "name", 0, false)
		require.Error(t, err)
	})

	t.Run("strips zero-width characters", func(t *testing.T) {
		actual, err := SanitizeText("Call\u200B of\u200B Duty\uFEFF", "name", 0, false)
		require.NoError(t, err)
		require.Equal(t, "Call of Duty", actual)
	})

	t.Run("returns empty when only invisible characters remain", func(t *testing.T) {
		actual, err := SanitizeText("\u200B\u200C\u200D", "name", 0, false)
		require.NoError(t, err)
		require.Empty(t, actual)
	})

	t.Run("rune-safe truncation preserves multi-byte characters", func(t *testing.T) {
		actual, err := SanitizeText(strings.Repeat("é", 260), "name", 120, false)
		require.NoError(t, err)
		require.Len(t, []rune(actual), 120)
		require.True(t, utf8.ValidString(actual))
	})
}
