// Package textproc provides the default tokenizers and term processors used
// by the search index, plus Unicode-aware alternatives.
package textproc

import (
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"golang.org/x/text/unicode/norm"
)

// Tokenize splits text on runs of whitespace, line breaks and punctuation.
// The field name is ignored.
func Tokenize(text, _ string) []string {
	return strings.FieldsFunc(text, isSeparator)
}

func isSeparator(r rune) bool {
	return r == '\n' || r == '\r' || unicode.IsSpace(r) || unicode.In(r, unicode.Z, unicode.P)
}

// Words splits text into words following the UAX #29 word boundary rules.
// Segments that contain no letter or digit (spaces, punctuation, symbols)
// are dropped.
func Words(text, _ string) []string {
	var tokens []string
	seg := words.FromString(text)
	for seg.Next() {
		token := seg.Value()
		if hasWordRune(token) {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// Lower is the default term processor: it lowercases the term and discards
// it when empty.
func Lower(term, _ string) []string {
	if term == "" {
		return nil
	}
	return []string{strings.ToLower(term)}
}

// Fold applies NFKC normalization before lowercasing, so that compatibility
// forms such as ligatures and full-width letters index as their plain
// equivalents.
func Fold(term, _ string) []string {
	folded := strings.ToLower(norm.NFKC.String(term))
	if folded == "" {
		return nil
	}
	return []string{folded}
}

// Tokenizers maps configuration names to tokenizer functions.
var Tokenizers = map[string]func(text, field string) []string{
	"default": Tokenize,
	"uax29":   Words,
}

// Processors maps configuration names to term processor functions.
var Processors = map[string]func(term, field string) []string{
	"lower": Lower,
	"nfkc":  Fold,
}
