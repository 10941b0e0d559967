// Package ngram derives the search token map stored alongside each
// record.
//
// Tokens are every substring of length 1 and 2 of the normalized text of
// a record's indexed fields. Normalization folds diacritics (NFD
// decomposition, combining marks stripped), lowercases, and removes
// whitespace, so "Ya ma da" and "yamada" produce the same tokens.
//
// The same normalization runs on search input, which makes token lookup
// a pure substring test: a query matches a record exactly when every
// query token appears in the record's token map.
package ngram

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalizer decomposes to NFD, drops combining marks and whitespace,
// and recomposes to NFC. Lowercasing happens separately; transform
// chains cannot change rune count mid-stream safely for case folding.
var normalizer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Remove(runes.In(unicode.White_Space)),
	norm.NFC,
)

// Normalize returns the canonical text used for token derivation:
// diacritics folded, whitespace stripped, lowercased.
func Normalize(s string) string {
	out, _, err := transform.String(normalizer, s)
	if err != nil {
		// A failed transform leaves the input usable as-is; tokens
		// derived from it still match queries normalized the same way.
		out = s
	}
	return strings.ToLower(out)
}

// Tokens derives the token map for a set of indexed field values.
// Returns nil when no value yields any text.
func Tokens(values ...string) map[string]any {
	var tokens map[string]any
	for _, v := range values {
		text := []rune(Normalize(v))
		for i := range text {
			if tokens == nil {
				tokens = make(map[string]any)
			}
			tokens[string(text[i:i+1])] = true
			if i+2 <= len(text) {
				tokens[string(text[i:i+2])] = true
			}
		}
	}
	return tokens
}

// QueryTokens tokenizes search input for intersection against stored
// token maps. Input longer than one rune yields only bigrams: every
// bigram of a substring is present in the source's token map, so
// unigrams would add lookups without narrowing the match.
func QueryTokens(text string) []string {
	runes := []rune(Normalize(text))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) == 1 {
		return []string{string(runes)}
	}
	seen := make(map[string]bool, len(runes))
	out := make([]string, 0, len(runes)-1)
	for i := 0; i+2 <= len(runes); i++ {
		tok := string(runes[i : i+2])
		if !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}
