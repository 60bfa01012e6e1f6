package completion

import (
	"strings"

	"github.com/dshills/ksense/internal/lsp"
)

// Item is a normalized completion candidate.
type Item struct {
	Label      string
	InsertText string
	// MatchText is what ranking compares against; it is never inserted.
	MatchText string
	SortText  string
	Detail    string
	Kind      lsp.CompletionItemKind

	// ReplaceStart and ReplaceEnd are the columns on the cursor line that
	// InsertText replaces, as the server sent them. Apply clamps an
	// inverted range.
	ReplaceStart int
	ReplaceEnd   int
}

// ResolveInsertText returns the text an item inserts: the text edit's new
// text, else the insert text, else the label. Snippet items have their
// tab stops and placeholders stripped.
func ResolveInsertText(item lsp.CompletionItem) string {
	var text string
	switch {
	case item.TextEdit != nil:
		text = item.TextEdit.NewText
	case item.InsertText != "":
		text = item.InsertText
	default:
		text = item.Label
	}

	if item.InsertTextFormat == lsp.InsertTextFormatSnippet {
		return StripSnippet(text)
	}
	return text
}

// StripSnippet removes snippet syntax from text:
//   - ${N:default} becomes default, resolved recursively
//   - ${N} and $N are removed
//   - ${N|one,two|} becomes one
//   - \$, \} and \\ become the escaped character
//
// Any other $ is kept.
func StripSnippet(text string) string {
	if !strings.ContainsAny(text, `$\`) {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	stripInto(&b, []rune(text))
	return b.String()
}

func stripInto(b *strings.Builder, rs []rune) {
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '\\' && i+1 < len(rs) && isSnippetEscape(rs[i+1]):
			i++
			b.WriteRune(rs[i])
		case r == '$' && i+1 < len(rs) && rs[i+1] == '{':
			end := closingBrace(rs, i+2)
			writePlaceholder(b, rs[i+2:end])
			i = end
		case r == '$' && i+1 < len(rs) && isDigit(rs[i+1]):
			for i+1 < len(rs) && isDigit(rs[i+1]) {
				i++
			}
		default:
			b.WriteRune(r)
		}
	}
}

// closingBrace returns the index of the brace closing a placeholder whose
// body starts at from, or len(rs) when it is unterminated.
func closingBrace(rs []rune, from int) int {
	depth := 0
	for i := from; i < len(rs); i++ {
		switch {
		case rs[i] == '\\' && i+1 < len(rs):
			i++
		case rs[i] == '$' && i+1 < len(rs) && rs[i+1] == '{':
			depth++
			i++
		case rs[i] == '}':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return len(rs)
}

// writePlaceholder emits the visible text of a ${...} body.
func writePlaceholder(b *strings.Builder, body []rune) {
	i := 0
	for i < len(body) && isNameRune(body[i]) {
		i++
	}
	if i >= len(body) {
		return
	}

	switch body[i] {
	case ':':
		stripInto(b, body[i+1:])
	case '|':
		choice := body[i+1:]
		for j, r := range choice {
			if r == ',' || r == '|' {
				choice = choice[:j]
				break
			}
		}
		b.WriteString(string(choice))
	}
}

func isSnippetEscape(r rune) bool {
	return r == '$' || r == '}' || r == '\\'
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isNameRune(r rune) bool {
	return r == '_' || isDigit(r) || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// ResolveReplaceRange returns the columns an item replaces on line. An item
// with a text edit uses the edit's range, or the insert range of an
// insert/replace edit; the edit must start and end on line or the item is
// rejected. Items without an edit use (defaultStart, defaultEnd).
func ResolveReplaceRange(item lsp.CompletionItem, line, defaultStart, defaultEnd int) (start, end int, ok bool) {
	if item.TextEdit == nil {
		return defaultStart, defaultEnd, true
	}

	r := item.TextEdit.EditRange()
	if r.Start.Line != line || r.End.Line != line {
		return 0, 0, false
	}
	return r.Start.Character, r.End.Character, true
}

// MatchText returns the filter text, else the raw insert text, else the
// resolved insert text.
func MatchText(item lsp.CompletionItem, insertText string) string {
	switch {
	case item.FilterText != "":
		return item.FilterText
	case item.InsertText != "":
		return item.InsertText
	default:
		return insertText
	}
}

type dedupeKey struct {
	start, end int
	match      string
	insert     string
}

// Collect normalizes raw items for the cursor at (line, defaultEnd).
// Items whose edit lies on another line or whose insert text is empty are
// dropped. Duplicates by (range, match text, insert text) keep their first
// occurrence; order is otherwise preserved.
func Collect(raw []lsp.CompletionItem, line, defaultStart, defaultEnd int) []Item {
	items := make([]Item, 0, len(raw))
	seen := make(map[dedupeKey]struct{}, len(raw))

	for _, r := range raw {
		start, end, ok := ResolveReplaceRange(r, line, defaultStart, defaultEnd)
		if !ok {
			continue
		}
		insert := ResolveInsertText(r)
		if insert == "" {
			continue
		}
		match := MatchText(r, insert)

		key := dedupeKey{start: start, end: end, match: match, insert: insert}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		sortText := r.SortText
		if sortText == "" {
			sortText = r.Label
		}
		items = append(items, Item{
			Label:        r.Label,
			InsertText:   insert,
			MatchText:    match,
			SortText:     sortText,
			Detail:       r.Detail,
			Kind:         r.Kind,
			ReplaceStart: start,
			ReplaceEnd:   end,
		})
	}
	return items
}
