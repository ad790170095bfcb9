// Package strings holds text helpers for CLI output.
package strings

import (
	"strings"
)

// DefaultColumnMaxLen is the default maximum width of a free-text table column.
const DefaultColumnMaxLen = 60

// MinTruncateLen is the smallest maxLen accepted by Truncate and TruncateMiddle.
// Smaller values would not leave room for content plus "...".
const MinTruncateLen = 4

// Truncate collapses all whitespace in s to single spaces and cuts the result
// to maxLen runes, ending in "..." when cut. maxLen is clamped to
// MinTruncateLen.
func Truncate(s string, maxLen int) string {
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

// TruncateMiddle is Truncate but keeps both ends of s, which suits URIs and
// scope lists whose tail is as telling as their head.
func TruncateMiddle(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	keep := maxLen - 3
	head := (keep + 1) / 2
	tail := keep - head
	return string(runes[:head]) + "..." + string(runes[len(runes)-tail:])
}
