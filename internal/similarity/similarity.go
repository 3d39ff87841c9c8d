// Package similarity provides 0..100 string similarity scores for fuzzy matching.
package similarity

import (
	"math"

	"github.com/agnivade/levenshtein"
)

// Func scores how alike two strings are, from 0 (unrelated) to 100 (identical).
type Func func(a, b string) int

// Ratio is the edit-distance similarity of a and b, normalised by the longer
// string's length in runes.
func Ratio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	return ratioRunes(ra, rb)
}

// PartialRatio is the best Ratio between the shorter string and every
// equally long window of the longer one, and never less than Ratio itself.
// A string contained in the other scores 100.
func PartialRatio(a, b string) int {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		if len(long) == 0 {
			return 100
		}
		return 0
	}
	if len(short) == len(long) {
		return ratioRunes(short, long)
	}

	best := ratioRunes(short, long)
	for start := 0; start+len(short) <= len(long); start++ {
		score := ratioRunes(short, long[start:start+len(short)])
		if score > best {
			best = score
			if best == 100 {
				break
			}
		}
	}
	return best
}

func ratioRunes(a, b []rune) int {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 100
	}

	dist := levenshtein.ComputeDistance(string(a), string(b))
	return int(math.Round(100 * (1 - float64(dist)/float64(longest))))
}
