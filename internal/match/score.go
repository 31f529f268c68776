package match

import (
	"sort"
	"strings"
)

// Score computes the combined similarity of a normalized keyword against a
// normalized text span, as an integer in [0,100]. It is the floored mean of
// [PartialRatio] and [TokenSetRatio]. When either side is empty the score is
// 0 — a degenerate comparison is not an error, it simply never matches.
//
// Inputs must already be normalized with [NormalizeForScoring]; the scoring
// functions index bytes directly and rely on the normalized alphabet being
// pure ASCII.
func Score(keyword, text string) int {
	if keyword == "" || text == "" {
		return 0
	}
	return (PartialRatio(keyword, text) + TokenSetRatio(keyword, text)) / 2
}

// PartialRatio is the best-matching-substring similarity: the shorter string
// is compared against every contiguous window of the longer string with the
// same length, and the maximum sequence similarity is returned (0–100).
func PartialRatio(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	best := 0
	for i := 0; i+len(shorter) <= len(longer); i++ {
		r := seqRatio(shorter, longer[i:i+len(shorter)])
		if r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

// TokenSetRatio tokenizes both strings on whitespace into deduplicated token
// sets and compares three reconstructed strings — the sorted intersection t0,
// t0 plus the left-exclusive tokens, and t0 plus the right-exclusive tokens —
// returning the maximum pairwise sequence similarity (0–100). Word order and
// extraneous words therefore barely affect the result when the shared
// vocabulary dominates.
func TokenSetRatio(a, b string) int {
	ta := tokenSet(a)
	tb := tokenSet(b)

	var inter, onlyA, onlyB []string
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter = append(inter, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range tb {
		if _, ok := ta[tok]; !ok {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(inter)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	t0 := strings.Join(inter, " ")
	t1 := strings.TrimSpace(t0 + " " + strings.Join(onlyA, " "))
	t2 := strings.TrimSpace(t0 + " " + strings.Join(onlyB, " "))

	best := seqRatio(t0, t1)
	if r := seqRatio(t0, t2); r > best {
		best = r
	}
	if r := seqRatio(t1, t2); r > best {
		best = r
	}
	return best
}

// tokenSet splits s on whitespace into a set of unique tokens.
func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

// seqRatio is the standard sequence similarity of two strings expressed
// 0–100: 200·LCS(a,b) / (len(a)+len(b)), rounded to the nearest integer.
// Two empty strings are identical (100).
func seqRatio(a, b string) int {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	m := lcsLength(a, b)
	return (200*m + total/2) / total
}

// lcsLength computes the longest-common-subsequence length of two byte
// strings using the usual two-row dynamic program. O(len(a)·len(b)) time,
// O(min) space.
func lcsLength(a, b string) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	prev := make([]int, len(a)+1)
	cur := make([]int, len(a)+1)
	for j := 1; j <= len(b); j++ {
		for i := 1; i <= len(a); i++ {
			if a[i-1] == b[j-1] {
				cur[i] = prev[i-1] + 1
			} else if prev[i] >= cur[i-1] {
				cur[i] = prev[i]
			} else {
				cur[i] = cur[i-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(a)]
}
