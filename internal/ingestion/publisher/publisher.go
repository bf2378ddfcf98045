// Package publisher persists fetched papers to PostgreSQL and publishes
// paper events to Kafka so the search service knows to rebuild its index.
// Papers are upserted by arXiv ID, so refetching a window is idempotent.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/paperscope/paperscope/internal/indexer/index"
	"github.com/paperscope/paperscope/internal/ingestion"
	"github.com/paperscope/paperscope/internal/ingestion/validator"
	"github.com/paperscope/paperscope/internal/store"
	"github.com/paperscope/paperscope/pkg/kafka"
)

// Publisher coordinates paper persistence and Kafka event production.
type Publisher struct {
	store    *store.Store
	producer *kafka.Producer
	logger   *slog.Logger
}

// New creates a Publisher with the given paper store and Kafka producer.
func New(st *store.Store, producer *kafka.Producer) *Publisher {
	return &Publisher{
		store:    st,
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// StoreBatch validates and upserts a batch of papers, then publishes one
// PaperEvent describing the batch. Papers that fail validation are skipped
// and logged, not fatal. Returns the number of papers written.
func (p *Publisher) StoreBatch(ctx context.Context, papers []index.Document) (int, error) {
	valid := make([]index.Document, 0, len(papers))
	for i := range papers {
		if err := validator.ValidatePaper(&papers[i]); err != nil {
			p.logger.Warn("paper failed validation, skipped",
				"id", papers[i].ID,
				"error", err,
			)
			continue
		}
		valid = append(valid, papers[i])
	}
	if len(valid) == 0 {
		return 0, nil
	}

	written, err := p.store.UpsertPapers(ctx, valid)
	if err != nil {
		return 0, fmt.Errorf("persisting papers: %w", err)
	}

	event := kafka.Event{
		Key: ingestion.EventPapersUpserted,
		Value: ingestion.PaperEvent{
			Type:       ingestion.EventPapersUpserted,
			Count:      written,
			Categories: distinctCategories(valid),
			FetchedAt:  time.Now().UTC(),
		},
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		// Papers are stored either way; the periodic rebuild will pick
		// them up if this trigger is lost.
		p.logger.Error("failed to publish paper event",
			"count", written,
			"error", err,
		)
	}

	p.logger.Info("paper batch stored",
		"fetched", len(papers),
		"written", written,
		"skipped", len(papers)-len(valid),
	)
	return written, nil
}

func distinctCategories(papers []index.Document) []string {
	seen := make(map[string]struct{})
	for i := range papers {
		if c := papers[i].PrimaryCategory; c != "" {
			seen[c] = struct{}{}
		}
	}
	cats := make([]string, 0, len(seen))
	for c := range seen {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}
