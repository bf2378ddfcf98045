// Package consumer listens for paper events on Kafka and schedules index
// rebuilds. The fetcher publishes one event per persisted batch; a debounce
// window coalesces a burst of events into a single rebuild.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/paperscope/paperscope/internal/indexer"
	"github.com/paperscope/paperscope/internal/ingestion"
	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/kafka"
)

// RebuildConsumer triggers engine rebuilds from paper events.
type RebuildConsumer struct {
	consumer *kafka.Consumer
	engine   *indexer.Engine
	debounce time.Duration
	kick     chan struct{}
	logger   *slog.Logger
}

// New creates a consumer on the paper-events topic that rebuilds the given
// engine. Debounce is how long to wait for the event burst to go quiet
// before rebuilding.
func New(cfg config.KafkaConfig, engine *indexer.Engine, debounce time.Duration) *RebuildConsumer {
	rc := &RebuildConsumer{
		engine:   engine,
		debounce: debounce,
		kick:     make(chan struct{}, 1),
		logger:   slog.Default().With("component", "rebuild-consumer"),
	}
	rc.consumer = kafka.NewConsumer(cfg, cfg.Topics.PaperEvents, rc.handleMessage)
	return rc
}

// Start runs the consume loop and the rebuild scheduler until ctx is
// cancelled.
func (rc *RebuildConsumer) Start(ctx context.Context) error {
	go rc.scheduleLoop(ctx)
	return rc.consumer.Start(ctx)
}

// Close releases the underlying Kafka reader.
func (rc *RebuildConsumer) Close() error {
	return rc.consumer.Close()
}

func (rc *RebuildConsumer) handleMessage(ctx context.Context, key, value []byte) error {
	event, err := kafka.DecodeJSON[ingestion.PaperEvent](value)
	if err != nil {
		// Skip malformed messages rather than blocking the partition.
		rc.logger.Error("undecodable paper event skipped", "key", string(key), "error", err)
		return nil
	}
	rc.logger.Debug("paper event received",
		"type", event.Type,
		"count", event.Count,
		"categories", event.Categories,
	)
	select {
	case rc.kick <- struct{}{}:
	default:
	}
	return nil
}

// scheduleLoop turns kicks into rebuilds. After the first kick it waits for
// the debounce window, absorbing further kicks, then rebuilds once.
func (rc *RebuildConsumer) scheduleLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-rc.kick:
		}

		timer := time.NewTimer(rc.debounce)
	quiet:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-rc.kick:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(rc.debounce)
			case <-timer.C:
				break quiet
			}
		}

		if _, err := rc.engine.Rebuild(ctx); err != nil {
			rc.logger.Error("event-triggered rebuild failed", "error", err)
		}
	}
}
