package ranker

import (
	"strings"
	"testing"

	"github.com/paperscope/paperscope/internal/indexer/index"
	"github.com/paperscope/paperscope/internal/searcher/expander"
)

func buildIndex(t *testing.T, docs ...index.Document) *index.Index {
	t.Helper()
	ix, err := index.Build(docs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return ix
}

func unit(words ...string) expander.Term {
	return expander.Term{Text: strings.Join(words, " "), Words: words}
}

func TestScoreSingleTerm(t *testing.T) {
	ix := buildIndex(t,
		index.Document{ID: "2301.00001", Title: "neural networks"},
		index.Document{ID: "2301.00002", Title: "quantum computing"},
	)

	got := Score(ix, []expander.Term{unit("neural")}, Params{})
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	// N=2 docs of length 2, df=1, tf=1, doc length equals average:
	// idf = ln(1 + 1.5/1.5) = ln 2, tf norm = 1, rounded to 0.6931.
	if got[0].DocID != "2301.00001" || got[0].Score != 0.6931 {
		t.Errorf("got %+v, want doc 2301.00001 score 0.6931", got[0])
	}
	if got[0].MatchedTerms != 1 {
		t.Errorf("MatchedTerms = %d, want 1", got[0].MatchedTerms)
	}
}

func TestScoreNoMatches(t *testing.T) {
	ix := buildIndex(t,
		index.Document{ID: "2301.00001", Title: "neural networks"},
	)

	if got := Score(ix, []expander.Term{unit("blockchain")}, Params{}); len(got) != 0 {
		t.Errorf("unknown term scored %d docs, want 0", len(got))
	}
	if got := Score(ix, nil, Params{}); len(got) != 0 {
		t.Errorf("empty term list scored %d docs, want 0", len(got))
	}
}

// TestScoreTermFrequencySaturation checks that a second occurrence raises
// the score by less than the first (k1 saturation).
func TestScoreTermFrequencySaturation(t *testing.T) {
	ix := buildIndex(t,
		index.Document{ID: "2301.00001", Title: "attention attention model"},
		index.Document{ID: "2301.00002", Title: "attention model baseline"},
	)

	got := Score(ix, []expander.Term{unit("attention")}, Params{})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	double, single := got[0], got[1]
	if double.DocID != "2301.00001" {
		t.Fatalf("doc with tf=2 should rank first, got %+v", got)
	}
	if double.Score <= single.Score {
		t.Errorf("tf=2 score %v not above tf=1 score %v", double.Score, single.Score)
	}
	if double.Score >= 2*single.Score {
		t.Errorf("tf=2 score %v not saturated below 2x tf=1 score %v",
			double.Score, single.Score)
	}
}

// TestScoreLengthNormalization checks that with equal term frequency the
// shorter document scores higher.
func TestScoreLengthNormalization(t *testing.T) {
	ix := buildIndex(t,
		index.Document{ID: "2301.00001", Title: "transformer models"},
		index.Document{ID: "2301.00002", Title: "transformer models vision tasks extra words"},
	)

	got := Score(ix, []expander.Term{unit("transformer")}, Params{})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].DocID != "2301.00001" {
		t.Errorf("shorter document should rank first, got %+v", got)
	}
}

func TestScoreTieBreakAscendingID(t *testing.T) {
	ix := buildIndex(t,
		index.Document{ID: "2301.00003", Title: "sparse coding"},
		index.Document{ID: "2301.00001", Title: "sparse coding"},
		index.Document{ID: "2301.00002", Title: "sparse coding sparse"},
	)

	got := Score(ix, []expander.Term{unit("sparse")}, Params{})
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// Doc 2 has tf=2 and ranks first; the identical docs 1 and 3 tie and
	// order by ascending id.
	wantOrder := []string{"2301.00002", "2301.00001", "2301.00003"}
	for i, want := range wantOrder {
		if got[i].DocID != want {
			t.Fatalf("order = %v, want %v", docIDs(got), wantOrder)
		}
	}
	if got[1].Score != got[2].Score {
		t.Errorf("identical docs scored differently: %v vs %v", got[1].Score, got[2].Score)
	}
}

// TestScoreConjunctiveUnit checks multi-word units: every component word
// must be present, and the unit frequency is the minimum component
// frequency.
func TestScoreConjunctiveUnit(t *testing.T) {
	ix := buildIndex(t,
		index.Document{ID: "2301.00001", Title: "neural networks neural architectures"},
		index.Document{ID: "2301.00002", Title: "neural computation"},
		index.Document{ID: "2301.00003", Title: "networks protocols"},
	)

	got := Score(ix, []expander.Term{unit("neural", "networks")}, Params{})
	if len(got) != 1 {
		t.Fatalf("conjunctive unit matched %d docs, want 1: %+v", len(got), got)
	}
	// Only doc 1 holds both words. Unit df=1, unit tf=min(2,1)=1:
	// idf = ln(8/3); length 4 against avgdl 8/3 gives tf norm 2.5/3.0625.
	if got[0].DocID != "2301.00001" || got[0].Score != 0.8007 {
		t.Errorf("got %+v, want doc 2301.00001 score 0.8007", got[0])
	}
}

func TestScoreMatchedTermsPerUnit(t *testing.T) {
	ix := buildIndex(t,
		index.Document{ID: "2301.00001", Title: "graph neural networks scale"},
		index.Document{ID: "2301.00002", Title: "graph theory"},
	)

	terms := []expander.Term{unit("graph"), unit("networks"), unit("missing")}
	got := Score(ix, terms, Params{})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	byID := map[string]ScoredDoc{}
	for _, d := range got {
		byID[d.DocID] = d
	}
	if byID["2301.00001"].MatchedTerms != 2 {
		t.Errorf("doc 1 MatchedTerms = %d, want 2", byID["2301.00001"].MatchedTerms)
	}
	if byID["2301.00002"].MatchedTerms != 1 {
		t.Errorf("doc 2 MatchedTerms = %d, want 1", byID["2301.00002"].MatchedTerms)
	}
}

// TestScoreMonotonicity rebuilds the corpus with one extra occurrence of the
// query term and checks the document's score does not decrease.
func TestScoreMonotonicity(t *testing.T) {
	before := buildIndex(t,
		index.Document{ID: "2301.00001", Title: "graph algorithms"},
	)
	after := buildIndex(t,
		index.Document{ID: "2301.00001", Title: "graph algorithms graph"},
	)

	terms := []expander.Term{unit("graph")}
	scoreBefore := Score(before, terms, Params{})[0].Score
	scoreAfter := Score(after, terms, Params{})[0].Score
	if scoreAfter < scoreBefore {
		t.Errorf("extra term occurrence lowered score: %v -> %v", scoreBefore, scoreAfter)
	}
}

func TestScoreParamSensitivity(t *testing.T) {
	t.Run("higher k1 rewards repetition", func(t *testing.T) {
		// Single doc, so its length equals the average and b drops out.
		ix := buildIndex(t,
			index.Document{ID: "2301.00001", Title: "soliton soliton soliton"},
		)
		terms := []expander.Term{unit("soliton")}
		low := Score(ix, terms, Params{K1: 0.5, B: 0.75})[0].Score
		high := Score(ix, terms, Params{K1: 2.0, B: 0.75})[0].Score
		if high <= low {
			t.Errorf("k1=2.0 score %v not above k1=0.5 score %v", high, low)
		}
	})

	t.Run("higher b penalizes long docs", func(t *testing.T) {
		ix := buildIndex(t,
			index.Document{ID: "2301.00001", Title: "kernel methods"},
			index.Document{ID: "2301.00002", Title: "kernel methods kernel methods kernel methods"},
		)
		terms := []expander.Term{unit("methods")}
		longAtLowB := scoreOf(t, Score(ix, terms, Params{K1: 1.5, B: 0.1}), "2301.00002")
		longAtHighB := scoreOf(t, Score(ix, terms, Params{K1: 1.5, B: 0.9}), "2301.00002")
		if longAtLowB <= longAtHighB {
			t.Errorf("long doc at b=0.1 scored %v, not above b=0.9 score %v",
				longAtLowB, longAtHighB)
		}
	})
}

func TestScoreZeroParamsUseDefaults(t *testing.T) {
	ix := buildIndex(t,
		index.Document{ID: "2301.00001", Title: "variational autoencoders"},
		index.Document{ID: "2301.00002", Title: "normalizing flows"},
	)
	terms := []expander.Term{unit("variational")}

	zero := Score(ix, terms, Params{})
	explicit := Score(ix, terms, Params{K1: DefaultK1, B: DefaultB})
	if zero[0].Score != explicit[0].Score {
		t.Errorf("zero params score %v != default params score %v",
			zero[0].Score, explicit[0].Score)
	}
}

func docIDs(docs []ScoredDoc) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.DocID
	}
	return ids
}

func scoreOf(t *testing.T, docs []ScoredDoc, id string) float64 {
	t.Helper()
	for _, d := range docs {
		if d.DocID == id {
			return d.Score
		}
	}
	t.Fatalf("doc %s not in results %v", id, docIDs(docs))
	return 0
}
