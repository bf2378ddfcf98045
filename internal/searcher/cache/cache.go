// Package cache stores search responses in Redis, keyed by a hash of the
// normalized request. Concurrent misses for the same key collapse into a
// single computation via singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/paperscope/paperscope/internal/searcher/executor"
	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/metrics"
	pkgredis "github.com/paperscope/paperscope/pkg/redis"
)

const keyPrefix = "search:"

// QueryCache caches executor responses.
type QueryCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a QueryCache. Metrics may be nil (tests).
func New(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		client:  client,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached response for the request, if present. Redis
// failures count as misses so a degraded cache never fails a search.
func (c *QueryCache) Get(ctx context.Context, req executor.Request) (*executor.Response, bool) {
	key := c.buildKey(req)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var resp executor.Response
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "query", req.Query, "key", key)
	return &resp, true
}

// Set stores a response under the request's key with the configured TTL.
func (c *QueryCache) Set(ctx context.Context, req executor.Request, resp *executor.Response) {
	key := c.buildKey(req)
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached response or runs computeFn once across
// all concurrent callers of the same key, caching its result. The bool
// reports whether the response came from cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	req executor.Request,
	computeFn func() (*executor.Response, error),
) (*executor.Response, bool, error) {
	if resp, ok := c.Get(ctx, req); ok {
		return resp, true, nil
	}
	key := c.buildKey(req)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if resp, ok := c.Get(ctx, req); ok {
			return resp, nil
		}
		resp, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, req, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.Response), false, nil
}

// Invalidate drops every cached search response. Called after index swaps
// so stale rankings never outlive a rebuild.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns lifetime hit and miss counts for this process.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *QueryCache) buildKey(req executor.Request) string {
	raw, _ := json.Marshal(normalizeRequest(req))
	hash := sha256.Sum256(raw)
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// normalizeRequest canonicalizes the fields that should not split cache
// entries: query casing and spacing, author casing, default sort.
func normalizeRequest(req executor.Request) executor.Request {
	req.Query = strings.Join(strings.Fields(strings.ToLower(req.Query)), " ")
	req.Author = strings.ToLower(strings.TrimSpace(req.Author))
	req.Category = strings.TrimSpace(req.Category)
	if req.Sort == "" {
		req.Sort = executor.SortRelevance
	}
	return req
}
