package strings

import (
	"strings"
)

const (
	// PreviewMaxLen is the number of characters of a message body shown in previews.
	PreviewMaxLen = 100

	// DiagnosticBodyMaxLen caps identity provider response bodies kept for diagnostics.
	DiagnosticBodyMaxLen = 512
)

// MinTruncateLen is the minimum maxLen value for TruncateLine.
// Values smaller than this would not leave room for meaningful content plus "...".
const MinTruncateLen = 4

// TruncateLine truncates a string to maxLen characters and ensures single-line output.
// It collapses all whitespace runs into single spaces and adds "..." if truncated.
//
// The function operates on runes, so multi-byte characters are never split.
// If maxLen is less than MinTruncateLen (4), it is clamped to MinTruncateLen.
//
// Args:
//   - s: The string to truncate
//   - maxLen: Maximum length of the result (including "..." if truncated)
//
// Returns:
//   - Truncated and sanitized string
func TruncateLine(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

// Preview keeps the first n characters of s and appends "..." when anything
// was cut. Whitespace is left untouched.
func Preview(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
