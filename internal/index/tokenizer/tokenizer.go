// Package tokenizer provides the text analysis applied to TEXT-mapped
// fields: input is lower-cased and split on non-alphanumeric boundaries.
// Token matching is therefore case-insensitive and punctuation-blind.
package tokenizer

import (
	"strings"
	"unicode"
)

// Tokenize breaks text into lowercased terms.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// TokenSet returns the distinct terms of text for membership tests.
func TokenSet(text string) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}
