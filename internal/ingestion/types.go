// Package ingestion defines the Kafka event schemas shared by the fetcher
// and the search service.
package ingestion

import "time"

// Event types carried on the paper-events topic.
const (
	EventPapersUpserted = "papers_upserted"
)

// PaperEvent is published after a batch of papers is persisted. The search
// service consumes it to schedule an index rebuild.
type PaperEvent struct {
	Type       string    `json:"type"`
	Count      int       `json:"count"`
	Categories []string  `json:"categories,omitempty"`
	FetchedAt  time.Time `json:"fetched_at"`
}
