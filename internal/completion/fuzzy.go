package completion

import (
	"strings"
	"unicode"
)

const maxDistance = 255

// SubsequenceScore reports whether every rune of query appears in
// candidate in order, matching greedily from the left. gaps counts the
// runes skipped between consecutive matches and leftover the runes after
// the last match. An empty query never matches.
func SubsequenceScore(query, candidate string) (gaps, leftover int, ok bool) {
	q := []rune(query)
	if len(q) == 0 {
		return 0, 0, false
	}

	c := []rune(candidate)
	qi, last := 0, -1
	for i, r := range c {
		if r != q[qi] {
			continue
		}
		if last >= 0 {
			gaps += i - last - 1
		}
		last = i
		qi++
		if qi == len(q) {
			return gaps, len(c) - last - 1, true
		}
	}
	return 0, 0, false
}

// BestEditDistance returns the smallest edit distance between query and
// the leading len(query)+1 runes of any identifier token of candidate.
// It reports false when candidate has no tokens.
func BestEditDistance(query, candidate string) (int, bool) {
	tokens := strings.FieldsFunc(candidate, func(r rune) bool {
		return !isIdentRune(r)
	})
	if len(tokens) == 0 {
		return 0, false
	}

	q := []rune(query)
	best := maxDistance
	for _, tok := range tokens {
		t := []rune(tok)
		if len(t) > len(q)+1 {
			t = t[:len(q)+1]
		}
		if d := levenshtein(q, t); d < best {
			best = d
		}
	}
	return best, true
}

// levenshtein returns the insert/delete/substitute distance between a and
// b, saturated at maxDistance.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return min(len(b), maxDistance)
	}
	if len(b) == 0 {
		return min(len(a), maxDistance)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i, ra := range a {
		curr[0] = i + 1
		for j, rb := range b {
			cost := 1
			if ra == rb {
				cost = 0
			}
			curr[j+1] = min(prev[j+1]+1, curr[j]+1, prev[j]+cost)
		}
		prev, curr = curr, prev
	}
	return min(prev[len(b)], maxDistance)
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
