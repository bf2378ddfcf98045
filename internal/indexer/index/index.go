// Package index implements the in-memory inverted index over a paper corpus:
// term dictionary, posting lists, per-document lengths, and corpus statistics.
// An Index is built in one pass and never mutated afterwards, so any number of
// concurrent readers can share it without locking; rebuilds construct a fresh
// Index and swap it in behind an atomic pointer (see the indexer engine).
package index

import (
	"iter"
	"sort"
	"time"

	"github.com/paperscope/paperscope/internal/indexer/tokenizer"
	"github.com/paperscope/paperscope/pkg/errors"
)

// Stats holds the corpus statistics BM25 needs, recomputed wholesale on
// every build.
type Stats struct {
	DocCount    int       `json:"doc_count"`
	TermCount   int       `json:"term_count"`
	TotalTokens int64     `json:"total_tokens"`
	AvgDocLen   float64   `json:"avg_doc_len"`
	BuiltAt     time.Time `json:"built_at"`
}

// Index is an immutable inverted index over paper titles and abstracts.
type Index struct {
	terms   map[string]map[string]int // term → doc id → frequency
	docs    map[string]*Document
	docLens map[string]int
	stats   Stats
}

// Build constructs an Index from the corpus in a single pass. Documents with
// empty or duplicate ids are skipped. Returns errors.ErrEmptyCorpus when no
// document makes it into the index; callers keep serving any previously built
// index in that case.
func Build(corpus []Document) (*Index, error) {
	ix := &Index{
		terms:   make(map[string]map[string]int),
		docs:    make(map[string]*Document, len(corpus)),
		docLens: make(map[string]int, len(corpus)),
	}

	var totalTokens int64
	for i := range corpus {
		doc := &corpus[i]
		if doc.ID == "" {
			continue
		}
		if _, dup := ix.docs[doc.ID]; dup {
			continue
		}

		length := 0
		for term := range tokenizer.Tokenize(doc.SearchText()) {
			length++
			docs, ok := ix.terms[term]
			if !ok {
				docs = make(map[string]int)
				ix.terms[term] = docs
			}
			docs[doc.ID]++
		}

		ix.docs[doc.ID] = doc
		ix.docLens[doc.ID] = length
		totalTokens += int64(length)
	}

	if len(ix.docs) == 0 {
		return nil, errors.ErrEmptyCorpus
	}

	ix.stats = Stats{
		DocCount:    len(ix.docs),
		TermCount:   len(ix.terms),
		TotalTokens: totalTokens,
		AvgDocLen:   float64(totalTokens) / float64(len(ix.docs)),
		BuiltAt:     time.Now().UTC(),
	}
	return ix, nil
}

// Stats returns the corpus statistics computed at build time.
func (ix *Index) Stats() Stats {
	return ix.stats
}

// DocFreq returns the number of documents containing the term, zero when the
// term is absent from the dictionary.
func (ix *Index) DocFreq(term string) int {
	return len(ix.terms[term])
}

// TermFreq returns the term's frequency within one document, zero when
// either the term or the document is unknown.
func (ix *Index) TermFreq(term, docID string) int {
	return ix.terms[term][docID]
}

// TermDocs returns the term's document-to-frequency map, or nil when the
// term is absent. The map is shared with the index and must not be modified.
func (ix *Index) TermDocs(term string) map[string]int {
	return ix.terms[term]
}

// Postings materialises the term's posting list ordered by document id.
// Absent terms yield an empty list, never an error.
func (ix *Index) Postings(term string) PostingList {
	docs := ix.terms[term]
	if len(docs) == 0 {
		return nil
	}
	postings := make(PostingList, 0, len(docs))
	for docID, freq := range docs {
		postings = append(postings, Posting{DocID: docID, Frequency: freq})
	}
	sort.Slice(postings, func(i, j int) bool {
		return postings[i].DocID < postings[j].DocID
	})
	return postings
}

// DocLength returns the token count of a document's indexed text.
func (ix *Index) DocLength(docID string) int {
	return ix.docLens[docID]
}

// Doc returns the document with the given id.
func (ix *Index) Doc(docID string) (*Document, bool) {
	doc, ok := ix.docs[docID]
	return doc, ok
}

// Docs iterates over all indexed documents in unspecified order.
func (ix *Index) Docs() iter.Seq[*Document] {
	return func(yield func(*Document) bool) {
		for _, doc := range ix.docs {
			if !yield(doc) {
				return
			}
		}
	}
}
