// Package analyze provides "did you mean" suggestions for near-miss
// string input: config keys, relation names, status values, and the
// like, wherever a CLI typo is likely and a short known list exists.
package analyze

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Suggestion pairs a known value with its similarity score (0-1, higher is better).
type Suggestion struct {
	Name  string
	Score float64
}

// DefaultThreshold is the minimum similarity score for a suggestion to be returned.
const DefaultThreshold = 0.5

// DefaultTopN is the maximum number of suggestions returned.
const DefaultTopN = 3

// Suggest returns known values similar to name, ranked by similarity score,
// scoring at least DefaultThreshold, up to DefaultTopN results.
func Suggest(name string, known []string) []Suggestion {
	return SuggestN(name, known, DefaultTopN, DefaultThreshold)
}

// SuggestN returns up to topN known values similar to name, with score >= threshold.
func SuggestN(name string, known []string, topN int, threshold float64) []Suggestion {
	if name == "" || len(known) == 0 {
		return nil
	}

	normName := normalize(name)
	var results []Suggestion
	for _, k := range known {
		score := similarity(normName, normalize(k))
		if score >= threshold {
			results = append(results, Suggestion{Name: k, Score: score})
		}
	}

	sortByScore(results)
	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	return results
}

// similarity combines normalized Levenshtein distance with small
// prefix/suffix bonuses, so "stor_root" scores higher against
// "store_root" than against an equally-distant but unrelated key.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	lev := 1.0 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)

	prefixBonus := 0.1 * float64(commonPrefixLen(a, b)) / float64(maxLen)
	suffixBonus := 0.05 * float64(commonSuffixLen(a, b)) / float64(maxLen)

	score := lev + prefixBonus + suffixBonus
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// normalize lowercases s and folds camelCase/snake_case/kebab-case
// variants onto the same space-joined token sequence.
func normalize(s string) string {
	runes := []rune(s)
	var parts []string
	var current []rune

	for i, r := range runes {
		switch {
		case r == '_' || r == '-':
			if len(current) > 0 {
				parts = append(parts, string(current))
				current = current[:0]
			}
		case unicode.IsUpper(r):
			if len(current) > 0 {
				prevLower := i > 0 && unicode.IsLower(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				prevUpper := i > 0 && unicode.IsUpper(runes[i-1])
				if prevLower || (prevUpper && nextLower) {
					parts = append(parts, string(current))
					current = current[:0]
				}
			}
			current = append(current, unicode.ToLower(r))
		default:
			current = append(current, unicode.ToLower(r))
		}
	}
	if len(current) > 0 {
		parts = append(parts, string(current))
	}
	return strings.Join(parts, " ")
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func commonSuffixLen(a, b string) int {
	la, lb := len(a), len(b)
	n := la
	if lb < n {
		n = lb
	}
	for i := 0; i < n; i++ {
		if a[la-1-i] != b[lb-1-i] {
			return i
		}
	}
	return n
}

// sortByScore sorts suggestions by score descending using insertion
// sort, sufficient for the short known-value lists callers pass.
func sortByScore(s []Suggestion) {
	for i := 1; i < len(s); i++ {
		key := s[i]
		j := i - 1
		for j >= 0 && s[j].Score < key.Score {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = key
	}
}

// Hint formats suggestions as a short parenthetical, e.g. " (did you
// mean store_root?)", or "" if there are none.
func Hint(suggestions []Suggestion) string {
	if len(suggestions) == 0 {
		return ""
	}
	if len(suggestions) == 1 {
		return " (did you mean " + suggestions[0].Name + "?)"
	}
	names := make([]string, len(suggestions))
	for i, s := range suggestions {
		names[i] = s.Name
	}
	return " (did you mean one of: " + strings.Join(names, ", ") + "?)"
}
