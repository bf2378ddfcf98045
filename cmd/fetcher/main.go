// Command fetcher harvests paper metadata from the arXiv API and stores it
// in Postgres. Each completed batch publishes a paper event to Kafka so that
// searchd rebuilds its index without waiting for the periodic timer.
//
// With -once it runs a single fetch cycle and exits, which is the mode to
// use from cron. Without it the fetcher stays up and repeats the cycle every
// arxiv.fetchInterval.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paperscope/paperscope/internal/arxiv"
	"github.com/paperscope/paperscope/internal/ingestion/publisher"
	"github.com/paperscope/paperscope/internal/store"
	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/kafka"
	"github.com/paperscope/paperscope/pkg/logger"
	"github.com/paperscope/paperscope/pkg/metrics"
	"github.com/paperscope/paperscope/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single fetch cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting fetcher",
		"categories", cfg.Arxiv.Categories,
		"max_results", cfg.Arxiv.MaxResults,
		"once", *once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		metricsShutdown := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", "error", err)
			}
		}()
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

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.PaperEvents)
	defer producer.Close()

	pub := publisher.New(papers, producer)
	client := arxiv.NewClient(cfg.Arxiv, m)

	runCycle := func() {
		start := time.Now()
		var fetched, written int
		for _, category := range cfg.Arxiv.Categories {
			if ctx.Err() != nil {
				return
			}
			docs, err := client.FetchCategory(ctx, category, cfg.Arxiv.MaxResults, cfg.Arxiv.PageSize)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				slog.Error("fetch failed", "category", category, "error", err)
				continue
			}
			n, err := pub.StoreBatch(ctx, docs)
			if err != nil {
				slog.Error("store failed", "category", category, "error", err)
				continue
			}
			fetched += len(docs)
			written += n
		}
		slog.Info("fetch cycle complete",
			"fetched", fetched,
			"written", written,
			"took", time.Since(start).Round(time.Millisecond),
		)
	}

	runCycle()
	if *once {
		slog.Info("fetcher finished")
		return
	}

	ticker := time.NewTicker(cfg.Arxiv.FetchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("fetcher stopped")
			return
		case <-ticker.C:
			runCycle()
		}
	}
}
