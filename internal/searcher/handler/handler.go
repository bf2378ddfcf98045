// Package handler serves the public search HTTP API: search, paper detail,
// popular searches, and the index and cache introspection endpoints.
package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/paperscope/paperscope/internal/analytics"
	"github.com/paperscope/paperscope/internal/analytics/collector"
	"github.com/paperscope/paperscope/internal/indexer"
	"github.com/paperscope/paperscope/internal/indexer/index"
	"github.com/paperscope/paperscope/internal/searcher/cache"
	"github.com/paperscope/paperscope/internal/searcher/executor"
	"github.com/paperscope/paperscope/internal/searcher/expander"
	"github.com/paperscope/paperscope/pkg/config"
	apperrors "github.com/paperscope/paperscope/pkg/errors"
	"github.com/paperscope/paperscope/pkg/logger"
	"github.com/paperscope/paperscope/pkg/metrics"
	"github.com/paperscope/paperscope/pkg/middleware"
	"github.com/paperscope/paperscope/pkg/tracing"
)

// PaperGetter fetches single papers for the detail endpoint.
type PaperGetter interface {
	Get(ctx context.Context, id string) (*index.Document, error)
}

// Handler holds the wiring for the search API endpoints.
type Handler struct {
	engine    *indexer.Engine
	executor  *executor.Executor
	papers    PaperGetter
	cache     *cache.QueryCache
	collector *collector.BatchCollector
	cfg       config.SearchConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Handler. Cache, collector, papers, and metrics may each be
// nil; the endpoints degrade accordingly.
func New(
	engine *indexer.Engine,
	exec *executor.Executor,
	papers PaperGetter,
	queryCache *cache.QueryCache,
	coll *collector.BatchCollector,
	cfg config.SearchConfig,
	m *metrics.Metrics,
) *Handler {
	return &Handler{
		engine:    engine,
		executor:  exec,
		papers:    papers,
		cache:     queryCache,
		collector: coll,
		cfg:       cfg,
		metrics:   m,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Search handles GET /api/v1/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	req, err := h.parseSearchRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	snapshot := h.engine.Current()

	// Per-request span trees only materialize at debug level.
	if h.logger.Enabled(ctx, slog.LevelDebug) {
		var span *tracing.Span
		ctx, span = tracing.StartSpan(ctx, "search", middleware.GetRequestID(ctx))
		defer func() {
			span.End()
			span.Log()
		}()
	}

	var (
		resp     *executor.Response
		cacheHit bool
	)
	if h.cache != nil {
		resp, cacheHit, err = h.cache.GetOrCompute(ctx, req, func() (*executor.Response, error) {
			return h.executor.Search(ctx, snapshot, req)
		})
	} else {
		resp, err = h.executor.Search(ctx, snapshot, req)
	}
	if err != nil {
		h.observeSearch("error", cacheHit, start, 0)
		log.Error("search failed", "query", req.Query, "error", err)
		h.writeError(w, err)
		return
	}

	latencyMs := time.Since(start).Milliseconds()
	outcome := "ok"
	if resp.TotalHits == 0 {
		outcome = "zero_result"
	}
	h.observeSearch(outcome, cacheHit, start, len(resp.Results))

	log.Info("search completed",
		"query", req.Query,
		"total_hits", resp.TotalHits,
		"returned", len(resp.Results),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)

	if h.collector != nil {
		h.collector.TrackSearch(analytics.SearchEvent{
			Query:     req.Query,
			Terms:     resp.ExpandedTerms,
			Category:  req.Category,
			Sort:      req.Sort,
			TotalHits: resp.TotalHits,
			Returned:  len(resp.Results),
			LatencyMs: latencyMs,
			CacheHit:  cacheHit,
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetPaper handles GET /api/v1/papers/{id}. The trailing wildcard admits
// old-style arXiv IDs with a slash ("math/0211159").
func (h *Handler) GetPaper(w http.ResponseWriter, r *http.Request) {
	if h.papers == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "paper store not configured"))
		return
	}
	id := r.PathValue("id")
	paper, err := h.papers.Get(r.Context(), id)
	if err != nil {
		if apperrors.HTTPStatusCode(err) >= http.StatusInternalServerError {
			h.logger.Error("paper lookup failed", "id", id, "error", err)
		}
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, paper)
}

// PopularSearches handles GET /api/v1/search/popular with the curated
// suggestion list.
func (h *Handler) PopularSearches(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"popular": expander.PopularSearches,
	})
}

// IndexStats handles GET /api/v1/index/stats. Before the first build it
// reports ready=false instead of failing, so operators can poll it during
// warmup.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	ix := h.engine.Current()
	if ix == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"ready": false})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"ready": true,
		"stats": ix.Stats(),
	})
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate handles POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, apperrors.New(apperrors.ErrInternal, http.StatusInternalServerError, "cache invalidation failed"))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// parseSearchRequest translates query parameters into an executor request.
// Malformed parameter values are 400s; out-of-range limits are not, they
// clamp downstream.
func (h *Handler) parseSearchRequest(r *http.Request) (executor.Request, error) {
	q := r.URL.Query()

	req := executor.Request{
		Query:    q.Get("q"),
		Expand:   h.cfg.ExpandByDefault,
		Category: q.Get("category"),
		Author:   q.Get("author"),
		Sort:     q.Get("sort"),
		Limit:    h.cfg.DefaultLimit,
	}
	if req.Query == "" {
		return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required")
	}

	if raw := q.Get("semantic"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "semantic must be a boolean")
		}
		req.Expand = v
	}
	if raw := q.Get("year_from"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "year_from must be an integer")
		}
		req.YearFrom = v
	}
	if raw := q.Get("year_to"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "year_to must be an integer")
		}
		req.YearTo = v
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be an integer")
		}
		req.Limit = v
	}
	return req, nil
}

func (h *Handler) observeSearch(outcome string, cacheHit bool, start time.Time, results int) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
	}
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	if outcome != "error" {
		h.metrics.SearchResultsCount.Observe(float64(results))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) && appErr.Message != "" {
		msg = appErr.Message
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
