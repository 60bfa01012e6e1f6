package completion

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/dshills/ksense/internal/lsp"
)

// DefaultLimit is the number of candidates kept after ranking.
const DefaultLimit = 12

// Tiers, best first.
const (
	TierExact = iota
	TierPrefix
	TierSubsequence
	TierFuzzy
	TierAny
)

// Score orders one candidate against a typed prefix. Lower sorts first,
// comparing Tier, then Distance, Gaps and LenDelta.
type Score struct {
	Tier     int
	Distance int
	Gaps     int
	LenDelta int
}

// Compare returns -1, 0 or +1 as r sorts before, with, or after o.
func (r Score) Compare(o Score) int {
	return cmp.Or(
		cmp.Compare(r.Tier, o.Tier),
		cmp.Compare(r.Distance, o.Distance),
		cmp.Compare(r.Gaps, o.Gaps),
		cmp.Compare(r.LenDelta, o.LenDelta),
	)
}

// fuzzyThreshold is the largest edit distance accepted for a query.
func fuzzyThreshold(queryLen int) int {
	if queryLen < 7 {
		return 1
	}
	return 2
}

// RankItem ranks item against prefix, case-insensitively. It reports false
// when the item matches in no tier and must be excluded.
func RankItem(item Item, prefix string) (Score, bool) {
	query := strings.ToLower(strings.TrimSpace(prefix))
	match := strings.ToLower(item.MatchText)
	matchLen := utf8.RuneCountInString(match)

	if query == "" {
		return Score{Tier: TierAny, LenDelta: matchLen}, true
	}

	label := strings.ToLower(item.Label)
	queryLen := utf8.RuneCountInString(query)

	if match == query || label == query {
		return Score{Tier: TierExact}, true
	}
	if strings.HasPrefix(match, query) || strings.HasPrefix(label, query) {
		return Score{Tier: TierPrefix, LenDelta: max(matchLen-queryLen, 0)}, true
	}
	if gaps, leftover, ok := SubsequenceScore(query, match); ok {
		return Score{Tier: TierSubsequence, Gaps: gaps, LenDelta: leftover}, true
	}

	dist, ok := BestEditDistance(query, match)
	if !ok || dist > fuzzyThreshold(queryLen) {
		return Score{}, false
	}
	return Score{Tier: TierFuzzy, Distance: dist, LenDelta: absInt(matchLen - queryLen)}, true
}

// Rank returns the items that match prefix in best-first order, keeping at
// most limit. A non-positive limit means DefaultLimit. Ties are broken by
// sort text, then label.
func Rank(items []Item, prefix string, limit int) []Item {
	if limit <= 0 {
		limit = DefaultLimit
	}

	type ranked struct {
		item  Item
		score Score
	}
	candidates := make([]ranked, 0, len(items))
	for _, item := range items {
		if r, ok := RankItem(item, prefix); ok {
			candidates = append(candidates, ranked{item: item, score: r})
		}
	}

	slices.SortStableFunc(candidates, func(a, b ranked) int {
		return cmp.Or(
			a.score.Compare(b.score),
			cmp.Compare(a.item.SortText, b.item.SortText),
			cmp.Compare(a.item.Label, b.item.Label),
		)
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]Item, len(candidates))
	for i, c := range candidates {
		out[i] = c.item
	}
	return out
}

// IdentifierStart scans left from col over letters, digits and
// underscores and returns the first column of that run.
func IdentifierStart(line string, col int) int {
	rs := []rune(line)
	i := min(max(col, 0), len(rs))
	for i > 0 && isIdentRune(rs[i-1]) {
		i--
	}
	return i
}

// TypedPrefix returns the text between the identifier start and col on
// line, never starting before the smallest replace start among items.
func TypedPrefix(line string, col int, items []Item) string {
	rs := []rune(line)
	start := IdentifierStart(line, col)
	if len(items) > 0 {
		minStart := items[0].ReplaceStart
		for _, it := range items[1:] {
			minStart = min(minStart, it.ReplaceStart)
		}
		start = max(start, minStart)
	}

	end := min(max(col, 0), len(rs))
	if start >= end {
		return ""
	}
	return string(rs[start:end])
}

// Prepare builds the ranked candidate list for update against the current
// text of the cursor line.
func Prepare(update lsp.CompletionUpdate, lineText string, limit int) []Item {
	defaultStart := IdentifierStart(lineText, update.Col)
	items := Collect(update.Items, update.Line, defaultStart, update.Col)
	prefix := TypedPrefix(lineText, update.Col, items)
	return Rank(items, prefix, limit)
}

// Apply replaces item's range on line with its insert text. The range is
// clamped to the line. It returns the new line and the cursor column just
// past the inserted text.
func Apply(line string, item Item) (string, int) {
	rs := []rune(line)
	start := min(max(item.ReplaceStart, 0), len(rs))
	end := max(min(item.ReplaceEnd, len(rs)), start)

	var b strings.Builder
	b.Grow(len(line) + len(item.InsertText))
	b.WriteString(string(rs[:start]))
	b.WriteString(item.InsertText)
	b.WriteString(string(rs[end:]))
	return b.String(), start + utf8.RuneCountInString(item.InsertText)
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
