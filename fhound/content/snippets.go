package content

import (
	"strings"
	"unicode"
)

// snippetAround returns the first occurrence of keyword in text with up to
// contextLen runes of surrounding context on each side, or "" when the
// keyword does not occur. Matching operates on runes so multi-byte text
// never yields torn snippets.
func snippetAround(text, keyword string, contextLen int, caseSensitive bool) string {
	if contextLen < 0 {
		contextLen = 0
	}
	tr := []rune(text)
	kr := []rune(keyword)
	if len(kr) == 0 || len(tr) == 0 {
		return ""
	}

	idx := indexRunes(tr, kr, caseSensitive)
	if idx < 0 {
		return ""
	}

	start := idx - contextLen
	if start < 0 {
		start = 0
	}
	end := idx + len(kr) + contextLen
	if end > len(tr) {
		end = len(tr)
	}
	return collapseSpace(string(tr[start:end]))
}

func containsKeyword(text, keyword string, caseSensitive bool) bool {
	if caseSensitive {
		return strings.Contains(text, keyword)
	}
	return indexRunes([]rune(text), []rune(keyword), false) >= 0
}

// indexRunes is a rune-wise substring search. Case folding is per rune, so
// it stays correct where byte-wise lowering of the whole text would not.
func indexRunes(hay, needle []rune, caseSensitive bool) int {
	if len(needle) == 0 || len(needle) > len(hay) {
		return -1
	}
	for i := 0; i+len(needle) <= len(hay); i++ {
		ok := true
		for j := 0; j < len(needle); j++ {
			a, b := hay[i+j], needle[j]
			if !caseSensitive {
				a = unicode.ToLower(a)
				b = unicode.ToLower(b)
			}
			if a != b {
				ok = false
				break
			}
		}
		if ok {
			return i
		}
	}
	return -1
}

// collapseSpace flattens runs of whitespace so snippets taken from XML or
// PDF text read as a single line.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
