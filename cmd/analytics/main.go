// Command analytics starts the standalone analytics aggregation service.
//
// It consumes search and rebuild events from Kafka, aggregates them in
// memory (query volume, latency percentiles, cache hit rate, top queries,
// index stats), and exposes an HTTP API for dashboards. Aggregated stats
// are snapshotted to Postgres periodically so history survives restarts.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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

	"github.com/paperscope/paperscope/internal/analytics"
	"github.com/paperscope/paperscope/internal/analytics/aggregator"
	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/health"
	"github.com/paperscope/paperscope/pkg/kafka"
	"github.com/paperscope/paperscope/pkg/logger"
	"github.com/paperscope/paperscope/pkg/middleware"
	"github.com/paperscope/paperscope/pkg/postgres"
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
	slog.Info("starting analytics service", "port", cfg.Analytics.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The consumer needs a handler and the handler needs the aggregator, so
	// the closure captures the variable and the aggregator is assigned before
	// the consumer starts delivering messages.
	var agg *analytics.Aggregator
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents,
		func(ctx context.Context, key, value []byte) error {
			return analytics.HandleEvent(agg)(ctx, key, value)
		},
	)
	agg = analytics.NewAggregator(consumer, cfg.Analytics.TopQueries)

	go func() {
		if err := agg.Start(ctx); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("consuming events", "topic", cfg.Kafka.Topics.SearchEvents)

	// Snapshots are best effort: without Postgres the service still serves
	// live stats, it just cannot answer /snapshots.
	snapshots, db := openSnapshots(ctx, cfg, agg)
	if db != nil {
		defer db.Close()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
		Handler:      routes(agg, snapshots, db),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	failed := make(chan error, 1)
	go func() {
		failed <- server.ListenAndServe()
	}()
	slog.Info("analytics service listening", "addr", server.Addr)

	select {
	case err := <-failed:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}

	slog.Info("analytics service stopped")
}

// openSnapshots connects to Postgres and starts periodic snapshotting.
// Both return values are nil when Postgres is unreachable or the schema
// cannot be applied.
func openSnapshots(ctx context.Context, cfg *config.Config, agg *analytics.Aggregator) (*aggregator.Store, *postgres.Client) {
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, snapshots disabled", "error", err)
		return nil, nil
	}
	store := aggregator.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Warn("snapshots schema failed, snapshots disabled", "error", err)
		db.Close()
		return nil, nil
	}
	store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
	return store, db
}

func routes(agg *analytics.Aggregator, snapshots *aggregator.Store, db *postgres.Client) http.Handler {
	var lister analytics.SnapshotLister
	if snapshots != nil {
		lister = snapshots
	}
	h := analytics.NewHandler(agg, lister)

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
	})
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if db == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "snapshots disabled"}
		}
		if err := db.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", h.Snapshots)
	mux.HandleFunc("GET /health", checker.ReadyHandler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	return middleware.RequestID(mux)
}
