package analytics

import (
	"cmp"
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/paperscope/paperscope/pkg/kafka"
)

// maxLatencySamples caps the in-memory latency window. Once full, each new
// sample overwrites the oldest, so percentiles track recent traffic.
const maxLatencySamples = 20000

// AggregatedStats is the rolling view served by the stats endpoint and
// persisted in snapshots.
type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	TotalRebuilds     int64        `json:"total_rebuilds"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	TopCategories     []QueryCount `json:"top_categories"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	IndexDocCount     int64        `json:"index_doc_count"`
	IndexTermCount    int64        `json:"index_term_count"`
	LastRebuildAt     time.Time    `json:"last_rebuild_at,omitzero"`
}

// QueryCount pairs a query (or category) with its occurrence count.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds the event stream into rolling counters. One mutex
// guards all state; events arrive from a single consumer goroutine and
// Stats is read at most a few times a second, so there is nothing to
// gain from finer locking.
type Aggregator struct {
	mu          sync.Mutex
	searches    int64
	rebuilds    int64
	cacheHits   int64
	cacheMisses int64
	zeroHits    int64
	byQuery     map[string]int64
	zeroByQuery map[string]int64
	byCategory  map[string]int64
	latWindow   []int64
	latNext     int
	docCount    int64
	termCount   int64
	lastRebuild time.Time

	startTime time.Time
	topN      int
	consumer  *kafka.Consumer
	log       *slog.Logger
}

// NewAggregator creates an Aggregator reading from the given consumer.
// topN bounds the ranked lists in Stats; zero means 10.
func NewAggregator(consumer *kafka.Consumer, topN int) *Aggregator {
	if topN <= 0 {
		topN = 10
	}
	return &Aggregator{
		byQuery:     make(map[string]int64),
		zeroByQuery: make(map[string]int64),
		byCategory:  make(map[string]int64),
		latWindow:   make([]int64, 0, 1024),
		startTime:   time.Now(),
		topN:        topN,
		consumer:    consumer,
		log:         slog.Default().With("component", "analytics-aggregator"),
	}
}

// Start consumes events until ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context) error {
	a.log.Info("analytics aggregator starting")
	return a.consumer.Start(ctx)
}

// HandleEvent returns the Kafka handler feeding this aggregator.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return agg.handleMessage
}

// handleMessage dispatches on the event's type field. Undecodable and
// unknown events are logged and dropped; returning an error would only
// make the consumer redeliver a payload that will never parse.
func (a *Aggregator) handleMessage(ctx context.Context, key, value []byte) error {
	var probe struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &probe); err != nil {
		a.log.Error("undecodable analytics event", "error", err)
		return nil
	}

	switch probe.Type {
	case EventSearch:
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			a.log.Error("bad search event", "error", err)
			return nil
		}
		a.noteSearch(event)
	case EventIndexRebuild:
		event, err := kafka.DecodeJSON[IndexEvent](value)
		if err != nil {
			a.log.Error("bad rebuild event", "error", err)
			return nil
		}
		a.noteRebuild(event)
	default:
		a.log.Warn("unknown analytics event type", "type", probe.Type)
	}
	return nil
}

func (a *Aggregator) noteSearch(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.searches++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	a.byQuery[event.Query]++
	if event.TotalHits == 0 {
		a.zeroHits++
		a.zeroByQuery[event.Query]++
	}
	if event.Category != "" {
		a.byCategory[event.Category]++
	}

	if len(a.latWindow) < maxLatencySamples {
		a.latWindow = append(a.latWindow, event.LatencyMs)
		return
	}
	a.latWindow[a.latNext] = event.LatencyMs
	a.latNext = (a.latNext + 1) % maxLatencySamples
}

func (a *Aggregator) noteRebuild(event IndexEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rebuilds++
	a.docCount = event.DocCount
	a.termCount = event.TermCount
	a.lastRebuild = event.Timestamp
}

// Stats assembles the current aggregate view. Maps and the latency
// window are snapshotted under the lock; sorting happens outside it.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	stats := AggregatedStats{
		TotalSearches:     a.searches,
		TotalRebuilds:     a.rebuilds,
		CacheHits:         a.cacheHits,
		CacheMisses:       a.cacheMisses,
		ZeroResultCount:   a.zeroHits,
		IndexDocCount:     a.docCount,
		IndexTermCount:    a.termCount,
		LastRebuildAt:     a.lastRebuild,
		TopQueries:        rankTop(a.byQuery, a.topN),
		ZeroResultQueries: rankTop(a.zeroByQuery, a.topN),
		TopCategories:     rankTop(a.byCategory, a.topN),
	}
	lats := append([]int64(nil), a.latWindow...)
	a.mu.Unlock()

	if len(lats) > 0 {
		slices.Sort(lats)
		var sum int64
		for _, l := range lats {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(lats))
		stats.P50LatencyMs = pickPercentile(lats, 50)
		stats.P95LatencyMs = pickPercentile(lats, 95)
		stats.P99LatencyMs = pickPercentile(lats, 99)
	}

	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func pickPercentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := min(pct*len(sorted)/100, len(sorted)-1)
	return sorted[idx]
}

// rankTop turns a count map into a descending list, ties broken
// alphabetically so repeated calls return a stable order.
func rankTop(counts map[string]int64, n int) []QueryCount {
	ranked := make([]QueryCount, 0, len(counts))
	for q, c := range counts {
		ranked = append(ranked, QueryCount{Query: q, Count: c})
	}
	slices.SortFunc(ranked, func(x, y QueryCount) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Query, y.Query)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
