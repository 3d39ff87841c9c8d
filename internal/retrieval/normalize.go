package retrieval

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize composes s to NFC and lower-cases it. Thai text typed with
// decomposed vowel marks then compares equal to sheet cells.
func Normalize(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// FoldThaiDigits replaces Thai digits ๐-๙ with their ASCII counterparts.
func FoldThaiDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '๐' && r <= '๙' {
			return '0' + (r - '๐')
		}
		return r
	}, s)
}
