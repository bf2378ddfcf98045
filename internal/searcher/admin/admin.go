// Package admin exposes operational RPCs on the search service: forcing an
// index rebuild, reading index stats, and flushing the query cache. It is
// served over the internal RPC listener, never the public HTTP port.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/paperscope/paperscope/internal/indexer"
	"github.com/paperscope/paperscope/internal/searcher/cache"
	"github.com/paperscope/paperscope/pkg/grpc"
	"github.com/paperscope/paperscope/pkg/proto"
)

// Service implements the Admin.* RPC methods.
type Service struct {
	engine *indexer.Engine
	cache  *cache.QueryCache
	logger *slog.Logger
}

// New creates the admin service. Cache may be nil when caching is disabled.
func New(engine *indexer.Engine, queryCache *cache.QueryCache) *Service {
	return &Service{
		engine: engine,
		cache:  queryCache,
		logger: slog.Default().With("component", "admin-rpc"),
	}
}

// RegisterAll attaches the Admin.* methods to the RPC server.
func (s *Service) RegisterAll(srv *grpc.Server) {
	srv.Register("Admin.Rebuild", s.handleRebuild)
	srv.Register("Admin.Stats", s.handleStats)
	srv.Register("Admin.InvalidateCache", s.handleInvalidate)
}

func (s *Service) handleRebuild(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.RebuildRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding rebuild request: %w", err)
		}
	}

	if !req.Wait {
		go func() {
			if _, err := s.engine.Rebuild(context.Background()); err != nil {
				s.logger.Error("background rebuild failed", "error", err)
			}
		}()
		return &proto.RebuildResponse{
			Started: true,
			Message: "rebuild scheduled",
		}, nil
	}

	start := time.Now()
	stats, err := s.engine.Rebuild(ctx)
	if err != nil {
		return nil, err
	}
	return &proto.RebuildResponse{
		Started:   true,
		Completed: true,
		DocCount:  int64(stats.DocCount),
		TermCount: int64(stats.TermCount),
		AvgDocLen: stats.AvgDocLen,
		TookMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (s *Service) handleStats(ctx context.Context, raw json.RawMessage) (any, error) {
	resp := &proto.StatsResponse{}
	if s.cache != nil {
		resp.CacheHits, resp.CacheMisses = s.cache.Stats()
	}

	ix := s.engine.Current()
	if ix == nil {
		return resp, nil
	}
	stats := ix.Stats()
	resp.Ready = true
	resp.DocCount = int64(stats.DocCount)
	resp.TermCount = int64(stats.TermCount)
	resp.TotalTokens = stats.TotalTokens
	resp.AvgDocLen = stats.AvgDocLen
	resp.BuiltAt = stats.BuiltAt.Unix()
	return resp, nil
}

func (s *Service) handleInvalidate(ctx context.Context, raw json.RawMessage) (any, error) {
	if s.cache == nil {
		return &proto.InvalidateResponse{
			Success: false,
			Message: "caching is disabled",
		}, nil
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		return nil, err
	}
	return &proto.InvalidateResponse{Success: true}, nil
}
