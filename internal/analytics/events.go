// Package analytics defines search and rebuild event schemas and aggregates
// them into rolling stats. Events travel over the search-events Kafka topic
// from the search service to the analytics service.
package analytics

import "time"

type EventType string

const (
	EventSearch       EventType = "search"
	EventIndexRebuild EventType = "index_rebuild"
)

// SearchEvent records one executed search.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	Category  string    `json:"category,omitempty"`
	Sort      string    `json:"sort,omitempty"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// IndexEvent records one completed index rebuild.
type IndexEvent struct {
	Type       EventType `json:"type"`
	DocCount   int64     `json:"doc_count"`
	TermCount  int64     `json:"term_count"`
	AvgDocLen  float64   `json:"avg_doc_len"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}
