// Package ranker scores documents against expanded query terms with BM25.
package ranker

import (
	"math"
	"sort"

	"github.com/paperscope/paperscope/internal/indexer/index"
	"github.com/paperscope/paperscope/internal/searcher/expander"
)

// Standard BM25 tuning constants, used when Params leaves them zero.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// Params carries the BM25 tuning constants. k1 controls term-frequency
// saturation, b the strength of document-length normalisation.
type Params struct {
	K1 float64
	B  float64
}

func (p Params) withDefaults() Params {
	if p.K1 == 0 {
		p.K1 = DefaultK1
	}
	if p.B == 0 {
		p.B = DefaultB
	}
	return p
}

// ScoredDoc is one ranked result: the document, its accumulated BM25 score,
// and how many query units matched it.
type ScoredDoc struct {
	DocID        string  `json:"doc_id"`
	Score        float64 `json:"score"`
	MatchedTerms int     `json:"matched_terms"`
}

// Score computes a BM25 score for every document matching at least one query
// unit and returns them ordered by descending score, ascending document id on
// ties. Documents matching no unit are absent from the output, not scored
// zero. Terms absent from the dictionary contribute nothing; an empty result
// is valid, never an error.
//
// For each unit t and document d:
//
//	idf(t)     = ln(1 + (N - df + 0.5) / (df + 0.5))
//	score(d,t) = idf(t) * tf(d,t)*(k1+1) / (tf(d,t) + k1*(1 - b + b*len(d)/avgdl))
//
// Multi-word units are conjunctive: df counts documents containing every
// component word and tf is the minimum component frequency.
func Score(ix *index.Index, terms []expander.Term, p Params) []ScoredDoc {
	p = p.withDefaults()
	stats := ix.Stats()
	totalDocs := float64(stats.DocCount)

	scores := make(map[string]float64)
	matches := make(map[string]int)

	for _, term := range terms {
		freqs := unitFrequencies(ix, term)
		if len(freqs) == 0 {
			continue
		}
		idf := computeIDF(totalDocs, float64(len(freqs)))
		for docID, freq := range freqs {
			tfNorm := computeTFNorm(float64(freq), float64(ix.DocLength(docID)), stats.AvgDocLen, p)
			scores[docID] += idf * tfNorm
			matches[docID]++
		}
	}

	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{
			DocID:        docID,
			Score:        math.Round(score*10000) / 10000,
			MatchedTerms: matches[docID],
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	return result
}

// unitFrequencies returns the per-document frequency map for one query unit.
// Single words read the term's posting map directly; multi-word units
// intersect their component words starting from the rarest one.
func unitFrequencies(ix *index.Index, term expander.Term) map[string]int {
	if len(term.Words) == 0 {
		return nil
	}
	if len(term.Words) == 1 {
		return ix.TermDocs(term.Words[0])
	}

	rarest := term.Words[0]
	for _, w := range term.Words[1:] {
		if ix.DocFreq(w) < ix.DocFreq(rarest) {
			rarest = w
		}
	}
	base := ix.TermDocs(rarest)
	if len(base) == 0 {
		return nil
	}

	freqs := make(map[string]int, len(base))
	for docID, minFreq := range base {
		contained := true
		for _, w := range term.Words {
			if w == rarest {
				continue
			}
			f := ix.TermFreq(w, docID)
			if f == 0 {
				contained = false
				break
			}
			if f < minFreq {
				minFreq = f
			}
		}
		if contained {
			freqs[docID] = minFreq
		}
	}
	return freqs
}

func computeIDF(totalDocs, docFreq float64) float64 {
	return math.Log(1 + (totalDocs-docFreq+0.5)/(docFreq+0.5))
}

func computeTFNorm(termFreq, docLength, avgDocLength float64, p Params) float64 {
	lengthRatio := 0.0
	if avgDocLength > 0 {
		lengthRatio = docLength / avgDocLength
	}
	return (termFreq * (p.K1 + 1)) / (termFreq + p.K1*(1-p.B+p.B*lengthRatio))
}
