// Package kafka wraps segmentio/kafka-go with the producer/consumer shapes
// the services share: JSON event values, hash-partitioned keys, and a
// fetch/handle/commit consume loop.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/segmentio/kafka-go"
)

// MessageHandler processes one message. A non-nil error leaves the message
// uncommitted, so the group sees it again.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer runs a consumer-group read loop over one topic.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	log     *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1e3,
			MaxBytes:    10e6,
			StartOffset: kafka.LastOffset,
		}),
		handler: handler,
		log:     slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start fetches and processes messages until ctx is cancelled, then closes
// the reader and returns nil.
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info("consumer started")
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Error("closing reader", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("consumer stopping", "reason", ctx.Err())
			return nil
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("fetch failed", "error", err)
			continue
		}
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	c.log.Debug("message received",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"bytes", len(msg.Value),
	)
	if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
		c.log.Error("handler failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.log.Error("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
	}
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
