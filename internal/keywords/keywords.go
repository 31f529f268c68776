// Package keywords assembles ordered keyword sets from the flat
// {category, keyword} item lists accepted by the keyword-replacement API.
//
// Category order follows first appearance and keyword order follows arrival
// order, so a set round-trips through storage without reordering — the match
// report's ordering guarantee starts here.
package keywords

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/callsift/callsift/internal/match"
)

// Item is one uploaded keyword entry.
type Item struct {
	Category string `json:"category"`
	Keyword  string `json:"keyword"`
}

// BuildSet converts items into an ordered [match.KeywordSet]. Entries whose
// category or keyword is blank after trimming are dropped silently — one bad
// row must not fail the upload. Duplicate keywords are kept.
func BuildSet(items []Item) match.KeywordSet {
	var set match.KeywordSet
	index := map[string]int{} // category name → position in set

	for _, it := range items {
		category := strings.TrimSpace(it.Category)
		keyword := strings.TrimSpace(it.Keyword)
		if category == "" || keyword == "" {
			continue
		}
		i, ok := index[category]
		if !ok {
			set = append(set, match.Category{Name: category})
			i = len(set) - 1
			index[category] = i
		}
		set[i].Keywords = append(set[i].Keywords, keyword)
	}
	return set
}

// Count returns the total number of keywords across all categories.
func Count(set match.KeywordSet) int {
	n := 0
	for _, c := range set {
		n += len(c.Keywords)
	}
	return n
}

// duplicateSimilarityThreshold is the Jaro-Winkler score above which two
// distinct keywords in the same category are reported as near-duplicates.
const duplicateSimilarityThreshold = 0.92

// Duplicate flags two near-identical keywords within one category.
type Duplicate struct {
	Category   string
	A, B       string
	Similarity float64
}

// NearDuplicates scans each category for keyword pairs that are exact
// duplicates or nearly identical under Jaro-Winkler similarity. The result is
// advisory: callers log it so sloppy uploads are visible, but the set is
// stored as given.
func NearDuplicates(set match.KeywordSet) []Duplicate {
	var dups []Duplicate
	for _, c := range set {
		for i := 0; i < len(c.Keywords); i++ {
			for j := i + 1; j < len(c.Keywords); j++ {
				a := strings.ToLower(c.Keywords[i])
				b := strings.ToLower(c.Keywords[j])
				var sim float64
				if a == b {
					sim = 1
				} else {
					sim = matchr.JaroWinkler(a, b, false)
				}
				if sim >= duplicateSimilarityThreshold {
					dups = append(dups, Duplicate{
						Category:   c.Name,
						A:          c.Keywords[i],
						B:          c.Keywords[j],
						Similarity: sim,
					})
				}
			}
		}
	}
	return dups
}
