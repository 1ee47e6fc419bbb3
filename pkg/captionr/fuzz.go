package captionr

import (
	"math"
	"unicode/utf8"

	"github.com/adrg/strutil/metrics"
)

// indel counts a substitution as a deletion plus an insertion.
var indel = &metrics.Levenshtein{
	CaseSensitive: true,
	InsertCost:    1,
	DeleteCost:    1,
	ReplaceCost:   2,
}

// Ratio returns the similarity of a and b on a 0-100 scale, rounded to a whole number.
// Two empty strings are considered unrelated and score 0.
func Ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 || a == "" || b == "" {
		return 0
	}
	d := indel.Distance(a, b)
	return math.RoundToEven(100 * float64(total-d) / float64(total))
}
