// Package tokenizer provides text normalisation for the search engine.
// It lower-cases input, splits on punctuation while keeping intra-word
// hyphens and periods (common in academic text: "state-of-the-art",
// "gpt-4", "v2.1"), and removes stop-words and short tokens. No stemming
// is applied: query expansion injects related forms, so exact-term
// matching keeps precision on the words actually typed.
package tokenizer

import (
	"iter"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// minTokenLen is the minimum token length in runes; shorter tokens carry
// almost no retrieval signal in paper titles and abstracts.
const minTokenLen = 3

// Tokenize returns a lazy, restartable sequence of normalised terms.
// Every range over the result re-scans the input and yields the same
// tokens in the same order. The input is never modified.
func Tokenize(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		runes := []rune(text)
		start := -1
		emit := func(end int) bool {
			if start < 0 {
				return true
			}
			tok := string(runes[start:end])
			runeLen := end - start
			start = -1
			if runeLen < minTokenLen {
				return true
			}
			if _, isStop := stopWords[tok]; isStop {
				return true
			}
			return yield(tok)
		}
		for i := 0; i < len(runes); i++ {
			r := unicode.ToLower(runes[i])
			runes[i] = r
			switch {
			case unicode.IsLetter(r) || unicode.IsDigit(r):
				if start < 0 {
					start = i
				}
			case (r == '-' || r == '.') && start >= 0 && i+1 < len(runes) && isWordRune(runes[i+1]):
				// Intra-word hyphen or period: keep it in the token.
			default:
				if !emit(i) {
					return
				}
			}
		}
		emit(len(runes))
	}
}

// Terms collects the token sequence into a slice, for callers that need
// random access.
func Terms(text string) []string {
	var terms []string
	for tok := range Tokenize(text) {
		terms = append(terms, tok)
	}
	return terms
}

// IsStopWord reports whether the given normalised token is in the
// stop-word set.
func IsStopWord(tok string) bool {
	_, ok := stopWords[tok]
	return ok
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
