// Package utils provides shared text, math, and logging helpers.
package utils

// Truncate returns s shortened to at most maxRunes runes, with "..." appended
// when something was cut. Counting runes rather than bytes keeps multi-byte
// snippets valid UTF-8. A maxRunes of 0 or less returns s unchanged.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
