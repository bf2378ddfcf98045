package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/segmentio/kafka-go"
)

const (
	writerBatchSize    = 100
	writerBatchTimeout = 10 * time.Millisecond
	writerMaxAttempts  = 3
)

// Event is one unit published to a topic: Key drives partition hashing,
// Value is JSON-encoded on the wire.
type Event struct {
	Key   string
	Value any
}

// Producer writes JSON events to a single Kafka topic. Construction does
// not touch the brokers; the first write does.
type Producer struct {
	writer *kafka.Writer
	log    *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  writerMaxAttempts,
			BatchSize:    writerBatchSize,
			BatchTimeout: writerBatchTimeout,
		},
		log: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func encodeEvent(e Event) (kafka.Message, error) {
	value, err := json.Marshal(e.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling event value: %w", err)
	}
	return kafka.Message{Key: []byte(e.Key), Value: value}, nil
}

// Publish writes one event synchronously.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("publish failed", "key", event.Key, "error", err)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.log.Debug("message published", "key", event.Key, "value_size", len(msg.Value))
	return nil
}

// PublishBatch writes events in one call. Any unmarshalable event fails the
// whole batch before anything is sent.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		msg, err := encodeEvent(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.log.Error("batch publish failed", "count", len(msgs), "error", err)
		return fmt.Errorf("publishing batch to kafka: %w", err)
	}
	p.log.Debug("batch published", "count", len(msgs))
	return nil
}

// Close flushes pending writes and releases the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
