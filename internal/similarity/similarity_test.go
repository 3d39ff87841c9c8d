package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"somchai", "somchai", 100},
		{"kitten", "sitting", 57},
		{"somchia", "somchai", 71},
		{"", "", 100},
		{"abc", "", 0},
		{"สมชาย", "สมชาย", 100},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Ratio(tc.a, tc.b), "%q vs %q", tc.a, tc.b)
	}
}

func TestPartialRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"contained", "somchai", "somchai jaidee", 100},
		{"order independent", "somchai jaidee", "somchai", 100},
		{"thai contained", "สมชาย", "นายสมชาย ใจดี", 100},
		{"one typo in window", "somchia", "mr somchai", 71},
		{"unrelated", "xyz", "somchai", 0},
		{"empty needle", "", "somchai", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PartialRatio(tc.a, tc.b))
		})
	}
}

func TestPartialRatioNeverBelowRatio(t *testing.T) {
	pairs := [][2]string{{"bangkok", "bangkok noi"}, {"chiang mai", "chiangmai"}, {"อนงค์", "อนง"}}
	for _, p := range pairs {
		assert.GreaterOrEqual(t, PartialRatio(p[0], p[1]), Ratio(p[0], p[1]), p)
	}
}

var _ Func = PartialRatio
