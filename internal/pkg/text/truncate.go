// Package text holds small string helpers shared by outbound channels.
package text

import "unicode/utf8"

const ellipsis = "..."

// Truncate cuts s to at most max runes, marking the cut with "...". The result never
// splits a UTF-8 sequence.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	keep := max - len(ellipsis)
	if keep <= 0 {
		return ellipsis[:max]
	}
	n := 0
	for i := range s {
		if n == keep {
			return s[:i] + ellipsis
		}
		n++
	}
	return s
}
