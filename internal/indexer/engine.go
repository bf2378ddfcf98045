// Package indexer owns the serving index lifecycle. The Engine holds the
// current immutable index behind an atomic pointer: queries load the pointer
// once and keep that snapshot for their whole run, while rebuilds construct a
// fresh index off to the side and swap it in. In-flight queries finish on the
// old snapshot; no reader ever observes a half-built index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/paperscope/paperscope/internal/indexer/index"
	"github.com/paperscope/paperscope/pkg/config"
	pkgerrors "github.com/paperscope/paperscope/pkg/errors"
	"github.com/paperscope/paperscope/pkg/metrics"
	"github.com/paperscope/paperscope/pkg/tracing"
)

// Loader supplies the full corpus for an index build.
type Loader interface {
	LoadAll(ctx context.Context) ([]index.Document, error)
}

// Engine builds and serves the in-memory index.
type Engine struct {
	loader  Loader
	cfg     config.IndexConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	current atomic.Pointer[index.Index]
	group   singleflight.Group
	onSwap  []func(stats index.Stats, took time.Duration)
}

// NewEngine creates an Engine that builds indexes from the given corpus
// loader. Metrics may be nil (tests).
func NewEngine(loader Loader, cfg config.IndexConfig, m *metrics.Metrics) *Engine {
	return &Engine{
		loader:  loader,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}
}

// OnSwap registers a hook to run after every successful index swap (cache
// invalidation, analytics). Register before the engine starts serving; the
// hook list is not guarded.
func (e *Engine) OnSwap(fn func(stats index.Stats, took time.Duration)) {
	e.onSwap = append(e.onSwap, fn)
}

// Current returns the live index snapshot, or nil before the first
// successful build.
func (e *Engine) Current() *index.Index {
	return e.current.Load()
}

// Ready reports whether an index is servable.
func (e *Engine) Ready() bool {
	return e.Current() != nil
}

// Rebuild loads the corpus, builds a fresh index, and swaps it in.
// Concurrent calls coalesce into a single build that all callers share. A
// failed build (including an empty corpus) leaves the previous index
// serving.
func (e *Engine) Rebuild(ctx context.Context) (index.Stats, error) {
	v, err, shared := e.group.Do("rebuild", func() (any, error) {
		return e.rebuild(ctx)
	})
	if err != nil {
		return index.Stats{}, err
	}
	if shared {
		e.logger.Debug("rebuild coalesced with concurrent request")
	}
	return v.(index.Stats), nil
}

func (e *Engine) rebuild(ctx context.Context) (index.Stats, error) {
	start := time.Now()
	e.logger.Info("index rebuild starting")
	ctx, span := tracing.StartSpan(ctx, "index.rebuild", fmt.Sprintf("rebuild-%d", start.UnixMilli()))

	_, loadSpan := tracing.StartChildSpan(ctx, "corpus.load")
	docs, err := e.loader.LoadAll(ctx)
	loadSpan.SetAttr("docs", len(docs))
	loadSpan.End()
	if err != nil {
		e.observeRebuild("error", start)
		return index.Stats{}, fmt.Errorf("loading corpus: %w", err)
	}

	_, buildSpan := tracing.StartChildSpan(ctx, "index.build")
	ix, err := index.Build(docs)
	buildSpan.End()
	if err != nil {
		status := "error"
		if errors.Is(err, pkgerrors.ErrEmptyCorpus) {
			status = "empty"
		}
		e.observeRebuild(status, start)
		e.logger.Error("index rebuild failed, previous index stays live",
			"error", err,
			"corpus_size", len(docs),
		)
		return index.Stats{}, fmt.Errorf("building index: %w", err)
	}

	e.current.Store(ix)
	stats := ix.Stats()
	took := time.Since(start)
	e.observeRebuild("ok", start)
	if e.metrics != nil {
		e.metrics.IndexDocuments.Set(float64(stats.DocCount))
		e.metrics.IndexTerms.Set(float64(stats.TermCount))
	}
	for _, fn := range e.onSwap {
		fn(stats, took)
	}
	span.SetAttr("docs", stats.DocCount)
	span.End()
	span.Log()
	e.logger.Info("index rebuilt",
		"docs", stats.DocCount,
		"terms", stats.TermCount,
		"avg_doc_len", stats.AvgDocLen,
		"took", took.Round(time.Millisecond),
	)
	return stats, nil
}

// StartRebuildLoop rebuilds on a fixed interval until ctx is cancelled.
func (e *Engine) StartRebuildLoop(ctx context.Context) {
	if e.cfg.RebuildInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.RebuildInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("rebuild loop stopping")
				return
			case <-ticker.C:
				if _, err := e.Rebuild(ctx); err != nil {
					e.logger.Error("periodic rebuild failed", "error", err)
				}
			}
		}
	}()
}

func (e *Engine) observeRebuild(status string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.IndexRebuildsTotal.WithLabelValues(status).Inc()
	e.metrics.IndexRebuildDuration.Observe(time.Since(start).Seconds())
}
