// Package collector accumulates analytics events in memory and flushes
// them to Kafka in bulk, so the search hot path never waits on the broker.
package collector

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/paperscope/paperscope/internal/analytics"
	"github.com/paperscope/paperscope/pkg/kafka"
)

// BatchCollector feeds events through a buffered channel into a single
// flush goroutine. The goroutine publishes whenever it has batchSize
// events pending or the flush interval elapses, whichever comes first.
// Track calls never block: when the channel is full the event is dropped
// and counted instead.
type BatchCollector struct {
	producer      *kafka.Producer
	events        chan kafka.Event
	batchSize     int
	flushInterval time.Duration
	log           *slog.Logger

	queued  atomic.Int64
	dropped atomic.Int64
	done    chan struct{}

	// pending is touched only by the flush goroutine.
	pending []kafka.Event
}

// NewBatchCollector creates a collector publishing to the given producer.
// Non-positive batchSize or flushInterval fall back to 100 events and 5s.
func NewBatchCollector(producer *kafka.Producer, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		producer:      producer,
		events:        make(chan kafka.Event, batchSize*3),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		log:           slog.Default().With("component", "batch-collector"),
		done:          make(chan struct{}),
	}
}

// TrackSearch buffers a search event.
func (bc *BatchCollector) TrackSearch(event analytics.SearchEvent) {
	event.Type = analytics.EventSearch
	bc.offer(kafka.Event{Key: string(analytics.EventSearch), Value: event})
}

// TrackRebuild buffers an index rebuild event.
func (bc *BatchCollector) TrackRebuild(event analytics.IndexEvent) {
	event.Type = analytics.EventIndexRebuild
	bc.offer(kafka.Event{Key: string(analytics.EventIndexRebuild), Value: event})
}

func (bc *BatchCollector) offer(ev kafka.Event) {
	select {
	case bc.events <- ev:
		bc.queued.Add(1)
	default:
		bc.dropped.Add(1)
	}
}

// BufferLen returns the number of events accepted but not yet published.
func (bc *BatchCollector) BufferLen() int {
	return int(bc.queued.Load())
}

// Dropped returns how many events were discarded because the buffer was
// full, cumulatively since the collector was created.
func (bc *BatchCollector) Dropped() int64 {
	return bc.dropped.Load()
}

// Start launches the flush goroutine. It runs until ctx is cancelled and
// then publishes whatever is still buffered, with a short deadline so
// shutdown cannot hang on an unreachable broker.
func (bc *BatchCollector) Start(ctx context.Context) {
	go func() {
		defer close(bc.done)
		ticker := time.NewTicker(bc.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case ev := <-bc.events:
				bc.pending = append(bc.pending, ev)
				if len(bc.pending) >= bc.batchSize {
					bc.publish(ctx)
				}
			case <-ticker.C:
				bc.publish(ctx)
			case <-ctx.Done():
				bc.drain()
				final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				bc.publish(final)
				cancel()
				return
			}
		}
	}()
	bc.log.Info("batch collector started",
		"batch_size", bc.batchSize,
		"flush_interval", bc.flushInterval,
	)
}

// Close waits for the flush goroutine to finish.
func (bc *BatchCollector) Close() {
	<-bc.done
}

// drain moves everything still sitting in the channel into pending.
func (bc *BatchCollector) drain() {
	for {
		select {
		case ev := <-bc.events:
			bc.pending = append(bc.pending, ev)
		default:
			return
		}
	}
}

// publish sends the pending batch. On failure the batch is kept for the
// next attempt, trimmed to three batches worth so a long broker outage
// cannot grow memory without bound.
func (bc *BatchCollector) publish(ctx context.Context) {
	if len(bc.pending) == 0 {
		return
	}

	if err := bc.producer.PublishBatch(ctx, bc.pending); err != nil {
		bc.log.Error("publishing analytics batch failed",
			"events", len(bc.pending),
			"error", err,
		)
		limit := bc.batchSize * 3
		if over := len(bc.pending) - limit; over > 0 {
			bc.pending = bc.pending[over:]
			bc.queued.Add(int64(-over))
			bc.dropped.Add(int64(over))
			bc.log.Warn("pending buffer trimmed", "events_dropped", over)
		}
		return
	}

	bc.queued.Add(int64(-len(bc.pending)))
	bc.log.Debug("analytics batch published", "events", len(bc.pending))
	bc.pending = bc.pending[:0]
}
