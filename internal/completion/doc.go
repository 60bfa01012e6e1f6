// Package completion turns raw completion items from a language server into
// the short, ranked candidate list shown under the cursor.
//
// The pipeline is pure and stateless:
//
//	Collect    resolve insert text and replace range per item, drop
//	           unusable items, dedupe
//	TypedPrefix derive the query from the line and the candidates
//	Rank       tier, order and truncate
//
// Prepare runs all three for one CompletionUpdate. Session holds the
// selection state of an open menu and Apply performs the replacement.
//
// Columns are counted in Unicode code points throughout.
package completion
