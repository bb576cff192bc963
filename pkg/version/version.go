// Package version compares module version strings.
//
// Raku ecosystem versions are usually semver-shaped ("1.2.3", "0.0.1") but
// the grammar is looser: date-style versions ("2021.07"), four-segment
// versions ("0.1.2.3") and bare "*" all appear in listings. Comparison
// therefore tries strict semantic versioning first and falls back to
// numeric segment comparison when either side does not parse.
package version

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Compare returns -1, 0, or 1 when a is less than, equal to, or greater
// than b under semantic ordering. Segments are compared numerically, not
// lexically: "1.10" is greater than "1.9".
func Compare(a, b string) int {
	av, aerr := semver.NewVersion(a)
	bv, berr := semver.NewVersion(b)
	if aerr == nil && berr == nil {
		return av.Compare(bv)
	}
	return compareSegments(a, b)
}

// Less reports whether a orders strictly before b.
func Less(a, b string) bool { return Compare(a, b) < 0 }

// compareSegments compares dot-separated version segments pairwise.
// Numeric segments compare as integers; non-numeric segments compare as
// strings. A missing segment counts as zero, so "1.2" equals "1.2.0".
func compareSegments(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "v"), ".")
	bs := strings.Split(strings.TrimPrefix(b, "v"), ".")

	n := max(len(as), len(bs))
	for i := range n {
		var sa, sb string
		if i < len(as) {
			sa = as[i]
		}
		if i < len(bs) {
			sb = bs[i]
		}

		na, aok := atoi(sa)
		nb, bok := atoi(sb)
		switch {
		case aok && bok:
			if na != nb {
				return sign(na - nb)
			}
		case aok != bok:
			// Numeric segments order after non-numeric ones, so "1.2"
			// beats "1.rc1" in the same position.
			if aok {
				return 1
			}
			return -1
		default:
			if c := strings.Compare(sa, sb); c != 0 {
				return c
			}
		}
	}
	return 0
}

// atoi parses a segment as a non-negative integer, treating an empty
// segment as zero.
func atoi(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
