// Command searchd runs the paper search service.
//
// It serves the public search API over HTTP, keeps an in-memory BM25 index
// in sync with the papers table (periodic rebuilds plus Kafka-triggered
// ones), and exposes an admin RPC listener used by searchctl.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paperscope/paperscope/internal/analytics"
	"github.com/paperscope/paperscope/internal/analytics/collector"
	"github.com/paperscope/paperscope/internal/indexer"
	"github.com/paperscope/paperscope/internal/indexer/consumer"
	"github.com/paperscope/paperscope/internal/indexer/index"
	"github.com/paperscope/paperscope/internal/searcher/admin"
	"github.com/paperscope/paperscope/internal/searcher/cache"
	"github.com/paperscope/paperscope/internal/searcher/executor"
	"github.com/paperscope/paperscope/internal/searcher/expander"
	"github.com/paperscope/paperscope/internal/searcher/handler"
	"github.com/paperscope/paperscope/internal/searcher/ranker"
	"github.com/paperscope/paperscope/internal/store"
	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/grpc"
	"github.com/paperscope/paperscope/pkg/health"
	"github.com/paperscope/paperscope/pkg/kafka"
	"github.com/paperscope/paperscope/pkg/logger"
	"github.com/paperscope/paperscope/pkg/metrics"
	"github.com/paperscope/paperscope/pkg/middleware"
	"github.com/paperscope/paperscope/pkg/postgres"
	pkgredis "github.com/paperscope/paperscope/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "admin_port", cfg.Server.AdminPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	papers := store.New(db)
	if err := papers.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure papers schema", "error", err)
		os.Exit(1)
	}

	// The cache is optional: if Redis is down the service still answers
	// queries, it just computes every one of them.
	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, query caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis, m)
		slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	table, err := expander.LoadTable(cfg.Search.ExpansionPath)
	if err != nil {
		slog.Warn("expansion table unavailable, using built-in defaults",
			"path", cfg.Search.ExpansionPath,
			"error", err,
		)
		table = expander.DefaultTable()
	}
	slog.Info("expansion table loaded", "concepts", len(table))

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
	defer producer.Close()
	coll := collector.NewBatchCollector(producer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
	coll.Start(ctx)
	defer coll.Close()

	engine := indexer.NewEngine(papers, cfg.Index, m)
	engine.OnSwap(func(stats index.Stats, took time.Duration) {
		if queryCache != nil {
			invCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := queryCache.Invalidate(invCtx); err != nil {
				slog.Error("cache invalidation after rebuild failed", "error", err)
			}
			cancel()
		}
		coll.TrackRebuild(analytics.IndexEvent{
			DocCount:   int64(stats.DocCount),
			TermCount:  int64(stats.TermCount),
			AvgDocLen:  stats.AvgDocLen,
			DurationMs: took.Milliseconds(),
			Timestamp:  time.Now().UTC(),
		})
	})

	if _, err := engine.Rebuild(ctx); err != nil {
		slog.Warn("initial index build failed, serving 503 until the first successful rebuild", "error", err)
	}
	engine.StartRebuildLoop(ctx)

	rebuilds := consumer.New(cfg.Kafka, engine, cfg.Index.RebuildDebounce)
	defer rebuilds.Close()
	go func() {
		if err := rebuilds.Start(ctx); err != nil {
			slog.Error("rebuild consumer stopped", "error", err)
		}
	}()

	exec := executor.New(expander.New(table), ranker.Params{K1: cfg.Index.K1, B: cfg.Index.B})
	h := handler.New(engine, exec, papers, queryCache, coll, cfg.Search, m)

	adminServer := grpc.NewServer()
	admin.New(engine, queryCache).RegisterAll(adminServer)
	go func() {
		if err := adminServer.Serve(fmt.Sprintf(":%d", cfg.Server.AdminPort)); err != nil {
			slog.Error("admin server stopped", "error", err)
		}
	}()
	defer adminServer.Stop()

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.Ping))
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		ix := engine.Current()
		if ix == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not built yet"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents", ix.Stats().DocCount),
		}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/papers/{id...}", h.GetPaper)
	mux.HandleFunc("GET /api/v1/search/popular", h.PopularSearches)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", checker.ReadyHandler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	if cfg.RateLimit.Enabled {
		chain = middleware.RateLimit(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	failed := make(chan error, 1)
	go func() {
		failed <- server.ListenAndServe()
	}()
	slog.Info("search service listening", "addr", server.Addr)

	select {
	case err := <-failed:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("shutting down search service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown failed", "error", err)
		}
		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", "error", err)
			}
		}
	}
	slog.Info("search service stopped")
}
