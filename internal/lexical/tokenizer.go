package lexical

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it on runs of characters that are not
// letters, digits, or underscores. Stop words are kept: identifiers such as
// "get" or "if" are meaningful in code.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), isSeparator)
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}

// termStats holds one chunk's term frequencies and token positions.
type termStats struct {
	tf        map[string]int
	positions map[string][]int
	length    int
}

func analyze(text string) termStats {
	tokens := Tokenize(text)
	stats := termStats{
		tf:        make(map[string]int),
		positions: make(map[string][]int),
		length:    len(tokens),
	}
	for pos, tok := range tokens {
		stats.tf[tok]++
		stats.positions[tok] = append(stats.positions[tok], pos)
	}
	return stats
}
