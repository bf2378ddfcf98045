// Package redis wraps go-redis/v9 with the small surface the query cache
// needs: get/set/delete plus scan-based pattern invalidation.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/redis/go-redis/v9"
)

const scanBatchSize = 100

// Client wraps one go-redis connection pool.
type Client struct {
	rdb *redis.Client
}

// NewClient connects and verifies the server with a bounded PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

// Set stores value under key with the given TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// FlushByPattern deletes every key matching the glob pattern, scanning and
// deleting in batches, and reports how many keys were removed.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	flush := func(keys []string) error {
		if len(keys) == 0 {
			return nil
		}
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("deleting keys for pattern %s: %w", pattern, err)
		}
		deleted += int64(len(keys))
		return nil
	}

	batch := make([]string, 0, scanBatchSize)
	iter := c.rdb.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatchSize {
			if err := flush(batch); err != nil {
				return deleted, err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan %s: %w", pattern, err)
	}
	if err := flush(batch); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// IsNilError reports whether err is the key-not-found reply.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
