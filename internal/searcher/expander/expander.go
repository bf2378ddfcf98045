// Package expander implements lexical query expansion: a static table maps
// casual search terms ("ai", "chat") to the academic vocabulary papers
// actually use ("artificial intelligence", "dialogue"). Expansion is additive
// only, so the expanded term set is always a superset of the literal query
// terms and exact matches never lose precision.
package expander

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/paperscope/paperscope/internal/indexer/tokenizer"
)

// Term is one scoring unit of an expanded query. Single-word terms carry one
// word; multi-word expansion values ("artificial intelligence") stay together
// as one unit so the ranker can score them conjunctively.
type Term struct {
	Text  string
	Words []string
}

// Result is the outcome of expanding a query: the term units to score, plus
// which expansion keys the query matched (surfaced to callers so users can
// see why extra terms appeared).
type Result struct {
	Terms       []Term
	MatchedKeys []string
}

// Expander performs lookups against an immutable expansion table.
type Expander struct {
	table Table
	keys  []string
}

// New creates an Expander over the given table. The table is not copied and
// must not be modified afterwards. Keys are matched case-insensitively.
func New(table Table) *Expander {
	keys := make([]string, 0, len(table))
	for key := range table {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return &Expander{table: table, keys: keys}
}

// Expand tokenizes the literal query and, when enabled, unions in the
// expansion values of every table key found in the query. Key matching runs
// against the lowercased raw query at word boundaries: table keys may be
// shorter than the tokenizer's minimum token length ("ai") or span several
// words ("big data"), so the token stream alone cannot drive the lookup, and
// a key must not match inside a longer word ("ai" in "chair").
func (e *Expander) Expand(query string, enabled bool) Result {
	var res Result
	seen := make(map[string]struct{})

	for _, word := range tokenizer.Terms(query) {
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		res.Terms = append(res.Terms, Term{Text: word, Words: []string{word}})
	}

	if !enabled {
		return res
	}

	queryLower := strings.ToLower(query)
	for _, key := range e.keys {
		if !containsPhrase(queryLower, key) {
			continue
		}
		res.MatchedKeys = append(res.MatchedKeys, key)
		for _, value := range e.table[key] {
			words := tokenizer.Terms(value)
			if len(words) == 0 {
				continue
			}
			text := strings.Join(words, " ")
			if _, dup := seen[text]; dup {
				continue
			}
			seen[text] = struct{}{}
			res.Terms = append(res.Terms, Term{Text: text, Words: words})
		}
	}
	return res
}

// containsPhrase reports whether key occurs in query with word boundaries on
// both sides.
func containsPhrase(query, key string) bool {
	if key == "" {
		return false
	}
	for start := 0; start <= len(query)-len(key); {
		i := strings.Index(query[start:], key)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(key)
		if boundaryBefore(query, i) && boundaryAfter(query, end) {
			return true
		}
		start = i + 1
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
