// Package executor orchestrates the search pipeline: query expansion, BM25
// scoring, metadata filtering, sorting, and result assembly. The executor
// never mutates the index it is handed, so any number of queries can run
// concurrently against the same snapshot, and an abandoned query has no side
// effects.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/paperscope/paperscope/internal/indexer/index"
	"github.com/paperscope/paperscope/internal/searcher/expander"
	"github.com/paperscope/paperscope/internal/searcher/ranker"
	"github.com/paperscope/paperscope/pkg/errors"
	"github.com/paperscope/paperscope/pkg/tracing"
)

// Sort modes accepted by Request.Sort.
const (
	SortRelevance = "relevance"
	SortDateDesc  = "date_desc"
	SortDateAsc   = "date_asc"
)

// Result-count bounds. Out-of-range limits are clamped to the nearest bound,
// never rejected and never left unbounded.
const (
	MinLimit = 1
	MaxLimit = 100
)

// Request is one search invocation. A zero YearFrom or YearTo leaves that
// bound open; both bounds are inclusive.
type Request struct {
	Query    string `json:"query"`
	Expand   bool   `json:"expand"`
	Category string `json:"category,omitempty"`
	YearFrom int    `json:"year_from,omitempty"`
	YearTo   int    `json:"year_to,omitempty"`
	Author   string `json:"author,omitempty"`
	Sort     string `json:"sort,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Result joins one scored document with its display metadata.
type Result struct {
	Paper        *index.Document `json:"paper"`
	Score        float64         `json:"score"`
	MatchedTerms int             `json:"matched_terms"`
}

// Response is the outcome of a search. TotalHits counts matches after
// filtering but before the limit truncation.
type Response struct {
	Query         string   `json:"query"`
	ExpandedTerms []string `json:"expanded_terms,omitempty"`
	MatchedKeys   []string `json:"matched_keys,omitempty"`
	TotalHits     int      `json:"total_hits"`
	Results       []Result `json:"results"`
	TookMs        int64    `json:"took_ms"`
}

// Executor runs search requests against an index snapshot.
type Executor struct {
	expander *expander.Expander
	params   ranker.Params
	logger   *slog.Logger
}

// New creates an Executor with the given expansion table wrapper and BM25
// parameters.
func New(exp *expander.Expander, params ranker.Params) *Executor {
	return &Executor{
		expander: exp,
		params:   params,
		logger:   slog.Default().With("component", "query-executor"),
	}
}

// Search executes one request against the given index snapshot. It returns
// errors.ErrIndexNotReady when no index has been built yet and
// errors.ErrUnknownSortMode for an unrecognised sort key; an empty result set
// is a valid response, not an error.
func (e *Executor) Search(ctx context.Context, ix *index.Index, req Request) (*Response, error) {
	if ix == nil {
		return nil, errors.ErrIndexNotReady
	}
	start := time.Now()
	sortMode := req.Sort
	if sortMode == "" {
		sortMode = SortRelevance
	}
	switch sortMode {
	case SortRelevance, SortDateDesc, SortDateAsc:
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownSortMode, req.Sort)
	}
	limit := clampLimit(req.Limit)

	_, expandSpan := tracing.StartChildSpan(ctx, "expand")
	expansion := e.expander.Expand(req.Query, req.Expand)
	expandSpan.SetAttr("terms", len(expansion.Terms))
	expandSpan.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, rankSpan := tracing.StartChildSpan(ctx, "rank")
	scored := ranker.Score(ix, expansion.Terms, e.params)
	rankSpan.SetAttr("candidates", len(scored))
	rankSpan.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, filterSpan := tracing.StartChildSpan(ctx, "filter_sort")
	filtered := applyFilters(ix, scored, req)
	total := len(filtered)
	sortResults(ix, filtered, sortMode)
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	filterSpan.SetAttr("total_hits", total)
	filterSpan.End()

	results := make([]Result, 0, len(filtered))
	for _, sd := range filtered {
		doc, ok := ix.Doc(sd.DocID)
		if !ok {
			continue
		}
		results = append(results, Result{
			Paper:        doc,
			Score:        sd.Score,
			MatchedTerms: sd.MatchedTerms,
		})
	}

	resp := &Response{
		Query:         req.Query,
		ExpandedTerms: termTexts(expansion.Terms),
		MatchedKeys:   expansion.MatchedKeys,
		TotalHits:     total,
		Results:       results,
		TookMs:        time.Since(start).Milliseconds(),
	}
	e.logger.Debug("query executed",
		"query", req.Query,
		"expand", req.Expand,
		"terms", len(expansion.Terms),
		"total_hits", total,
		"returned", len(results),
		"sort", sortMode,
	)
	return resp, nil
}

// clampLimit folds an out-of-range limit back into [MinLimit, MaxLimit].
func clampLimit(limit int) int {
	if limit < MinLimit {
		return MinLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// applyFilters keeps only documents passing every requested predicate. The
// predicates are independent, so their application order does not change the
// result set. An inverted year range (from > to) matches nothing by policy:
// the request is well-formed but can never be satisfied.
func applyFilters(ix *index.Index, scored []ranker.ScoredDoc, req Request) []ranker.ScoredDoc {
	if req.Category == "" && req.YearFrom == 0 && req.YearTo == 0 && req.Author == "" {
		return scored
	}
	if req.YearFrom > 0 && req.YearTo > 0 && req.YearFrom > req.YearTo {
		return nil
	}
	author := strings.ToLower(req.Author)
	kept := make([]ranker.ScoredDoc, 0, len(scored))
	for _, sd := range scored {
		doc, ok := ix.Doc(sd.DocID)
		if !ok {
			continue
		}
		if req.Category != "" && doc.PrimaryCategory != req.Category {
			continue
		}
		if req.YearFrom > 0 && doc.Year < req.YearFrom {
			continue
		}
		if req.YearTo > 0 && doc.Year > req.YearTo {
			continue
		}
		if author != "" && !strings.Contains(strings.ToLower(doc.AuthorLine()), author) {
			continue
		}
		kept = append(kept, sd)
	}
	return kept
}

// sortResults reorders results in place for the date sort modes. Relevance
// keeps the ranker's order: score descending, document id ascending on ties.
// Date sorts use the publication timestamp with score as the secondary key
// and document id as the final tie-break, so ordering stays deterministic.
func sortResults(ix *index.Index, results []ranker.ScoredDoc, mode string) {
	if mode == SortRelevance {
		return
	}
	published := func(docID string) time.Time {
		doc, ok := ix.Doc(docID)
		if !ok {
			return time.Time{}
		}
		if doc.Published.IsZero() && doc.Year > 0 {
			return time.Date(doc.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		}
		return doc.Published
	}
	sort.SliceStable(results, func(i, j int) bool {
		di, dj := published(results[i].DocID), published(results[j].DocID)
		if !di.Equal(dj) {
			if mode == SortDateAsc {
				return di.Before(dj)
			}
			return di.After(dj)
		}
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
}

func termTexts(terms []expander.Term) []string {
	if len(terms) == 0 {
		return nil
	}
	texts := make([]string, len(terms))
	for i, t := range terms {
		texts[i] = t.Text
	}
	return texts
}
