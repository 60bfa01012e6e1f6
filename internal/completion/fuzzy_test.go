package completion

import (
	"strings"
	"testing"
)

func TestSubsequenceScore(t *testing.T) {
	tests := []struct {
		query, candidate string
		gaps, leftover   int
		ok               bool
	}{
		{"gtx", "getx", 1, 0, true},
		{"gtx", "xgte", 0, 0, false},
		{"abc", "abc", 0, 0, true},
		{"ac", "abcde", 1, 2, true},
		{"ae", "abcde", 3, 0, true},
		{"", "abc", 0, 0, false},
		{"abcd", "abc", 0, 0, false},
		{"üb", "über", 0, 2, true},
	}

	for _, tt := range tests {
		gaps, leftover, ok := SubsequenceScore(tt.query, tt.candidate)
		if ok != tt.ok || gaps != tt.gaps || leftover != tt.leftover {
			t.Errorf("SubsequenceScore(%q, %q) = (%d, %d, %v), want (%d, %d, %v)",
				tt.query, tt.candidate, gaps, leftover, ok, tt.gaps, tt.leftover, tt.ok)
		}
	}
}

func TestBestEditDistance(t *testing.T) {
	tests := []struct {
		query, candidate string
		want             int
		ok               bool
	}{
		{"gett", "better", 2, true},
		{"gett", "gete", 1, true},
		{"gett", "foo.gete", 1, true},
		{"gtx", "xgte", 2, true},
		{"abc", "x-abd", 1, true},
		{"abc", "...", 0, false},
		{"abc", "", 0, false},
	}

	for _, tt := range tests {
		got, ok := BestEditDistance(tt.query, tt.candidate)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("BestEditDistance(%q, %q) = (%d, %v), want (%d, %v)", tt.query, tt.candidate, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		if got := levenshtein([]rune(tt.a), []rune(tt.b)); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLevenshtein_Saturates(t *testing.T) {
	long := []rune(strings.Repeat("a", 300))
	if got := levenshtein(long, []rune("b")); got != maxDistance {
		t.Errorf("levenshtein = %d, want %d", got, maxDistance)
	}
	if got := levenshtein(nil, long); got != maxDistance {
		t.Errorf("levenshtein = %d, want %d", got, maxDistance)
	}
}
