package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"testing"
	"time"
)

func deliver(t *testing.T, agg *Aggregator, event any) {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if err := HandleEvent(agg)(context.Background(), nil, payload); err != nil {
		t.Fatalf("handle event: %v", err)
	}
}

func TestAggregatorSearchEvents(t *testing.T) {
	agg := NewAggregator(nil, 10)

	deliver(t, agg, SearchEvent{
		Type: EventSearch, Query: "transformers", TotalHits: 12,
		LatencyMs: 5, CacheHit: false, Category: "cs.LG",
	})
	deliver(t, agg, SearchEvent{
		Type: EventSearch, Query: "transformers", TotalHits: 12,
		LatencyMs: 1, CacheHit: true, Category: "cs.LG",
	})
	deliver(t, agg, SearchEvent{
		Type: EventSearch, Query: "perpetual motion", TotalHits: 0,
		LatencyMs: 3, CacheHit: false,
	})

	stats := agg.Stats()
	if stats.TotalSearches != 3 {
		t.Errorf("TotalSearches = %d, want 3", stats.TotalSearches)
	}
	if stats.CacheHits != 1 || stats.CacheMisses != 2 {
		t.Errorf("cache hits/misses = %d/%d, want 1/2", stats.CacheHits, stats.CacheMisses)
	}
	if stats.ZeroResultCount != 1 {
		t.Errorf("ZeroResultCount = %d, want 1", stats.ZeroResultCount)
	}
	if len(stats.TopQueries) == 0 || stats.TopQueries[0].Query != "transformers" || stats.TopQueries[0].Count != 2 {
		t.Errorf("TopQueries = %v, want transformers with count 2 first", stats.TopQueries)
	}
	if len(stats.ZeroResultQueries) != 1 || stats.ZeroResultQueries[0].Query != "perpetual motion" {
		t.Errorf("ZeroResultQueries = %v, want only the zero-hit query", stats.ZeroResultQueries)
	}
	if len(stats.TopCategories) != 1 || stats.TopCategories[0].Query != "cs.LG" || stats.TopCategories[0].Count != 2 {
		t.Errorf("TopCategories = %v, want cs.LG with count 2", stats.TopCategories)
	}
	if stats.QueriesPerMinute <= 0 {
		t.Errorf("QueriesPerMinute = %v, want > 0", stats.QueriesPerMinute)
	}
}

func TestAggregatorRebuildEvents(t *testing.T) {
	agg := NewAggregator(nil, 10)

	first := time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(15 * time.Minute)
	deliver(t, agg, IndexEvent{
		Type: EventIndexRebuild, DocCount: 1000, TermCount: 5000,
		DurationMs: 120, Timestamp: first,
	})
	deliver(t, agg, IndexEvent{
		Type: EventIndexRebuild, DocCount: 1100, TermCount: 5200,
		DurationMs: 130, Timestamp: second,
	})

	stats := agg.Stats()
	if stats.TotalRebuilds != 2 {
		t.Errorf("TotalRebuilds = %d, want 2", stats.TotalRebuilds)
	}
	// Doc and term counts are gauges tracking the latest rebuild.
	if stats.IndexDocCount != 1100 || stats.IndexTermCount != 5200 {
		t.Errorf("index counters = %d/%d, want 1100/5200",
			stats.IndexDocCount, stats.IndexTermCount)
	}
	if !stats.LastRebuildAt.Equal(second) {
		t.Errorf("LastRebuildAt = %v, want %v", stats.LastRebuildAt, second)
	}
}

func TestAggregatorIgnoresBadEvents(t *testing.T) {
	agg := NewAggregator(nil, 10)
	handler := HandleEvent(agg)

	// Handler errors would make the consumer retry; bad payloads are
	// swallowed instead.
	if err := handler(context.Background(), nil, []byte("{not json")); err != nil {
		t.Errorf("undecodable payload returned error: %v", err)
	}
	if err := handler(context.Background(), nil, []byte(`{"type":"telemetry"}`)); err != nil {
		t.Errorf("unknown event type returned error: %v", err)
	}

	stats := agg.Stats()
	if stats.TotalSearches != 0 || stats.TotalRebuilds != 0 {
		t.Errorf("bad events moved counters: %+v", stats)
	}
}

func TestAggregatorLatencyPercentiles(t *testing.T) {
	agg := NewAggregator(nil, 10)

	// Latencies 1..100ms, delivered in descending order to prove Stats
	// sorts before picking percentiles.
	for ms := 100; ms >= 1; ms-- {
		deliver(t, agg, SearchEvent{
			Type: EventSearch, Query: "q", TotalHits: 1, LatencyMs: int64(ms),
		})
	}

	stats := agg.Stats()
	if stats.AvgLatencyMs != 50.5 {
		t.Errorf("AvgLatencyMs = %v, want 50.5", stats.AvgLatencyMs)
	}
	if stats.P50LatencyMs != 51 {
		t.Errorf("P50LatencyMs = %v, want 51", stats.P50LatencyMs)
	}
	if stats.P95LatencyMs != 96 {
		t.Errorf("P95LatencyMs = %v, want 96", stats.P95LatencyMs)
	}
	if stats.P99LatencyMs != 100 {
		t.Errorf("P99LatencyMs = %v, want 100", stats.P99LatencyMs)
	}
}

func TestAggregatorTopNOrdering(t *testing.T) {
	agg := NewAggregator(nil, 3)

	counts := map[string]int{
		"alpha": 5, "beta": 5, "gamma": 9, "delta": 2, "epsilon": 1,
	}
	for q, n := range counts {
		for i := 0; i < n; i++ {
			deliver(t, agg, SearchEvent{Type: EventSearch, Query: q, TotalHits: 1})
		}
	}

	stats := agg.Stats()
	if len(stats.TopQueries) != 3 {
		t.Fatalf("TopQueries has %d entries, want topN = 3", len(stats.TopQueries))
	}
	// gamma leads on count; alpha and beta tie and order alphabetically.
	var got []string
	for _, qc := range stats.TopQueries {
		got = append(got, qc.Query)
	}
	if !slices.Equal(got, []string{"gamma", "alpha", "beta"}) {
		t.Errorf("TopQueries order = %v, want [gamma, alpha, beta]", got)
	}
}

func TestAggregatorTopNDefault(t *testing.T) {
	agg := NewAggregator(nil, 0)

	for i := 0; i < 15; i++ {
		deliver(t, agg, SearchEvent{
			Type: EventSearch, Query: fmt.Sprintf("query-%02d", i), TotalHits: 1,
		})
	}
	if got := len(agg.Stats().TopQueries); got != 10 {
		t.Errorf("default topN kept %d queries, want 10", got)
	}
}
