// Package aggregator persists periodic snapshots of aggregated analytics
// stats to PostgreSQL, so stats survive restarts of the analytics service.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/paperscope/paperscope/internal/analytics"
	"github.com/paperscope/paperscope/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS analytics_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    data        JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Snapshots older than this are swept during the periodic save. The table
// gains one row per interval, so without a sweep it grows forever.
const snapshotRetention = 30 * 24 * time.Hour

// Store writes aggregated stats snapshots to PostgreSQL and reads them
// back newest first. Rows are ordered by id, which BIGSERIAL assigns in
// insertion order.
type Store struct {
	db  *postgres.Client
	log *slog.Logger
}

// NewStore creates a new analytics persistence store.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:  db,
		log: slog.Default().With("component", "analytics-store"),
	}
}

// EnsureSchema creates the snapshots table if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating analytics_snapshots table: %w", err)
	}
	return nil
}

// SaveSnapshot appends one stats snapshot. The capture time comes from the
// database clock, so rows from several service instances sort consistently.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding stats snapshot: %w", err)
	}
	if _, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (data) VALUES ($1)`, payload,
	); err != nil {
		return fmt.Errorf("inserting stats snapshot: %w", err)
	}
	s.log.Info("snapshot saved",
		"searches", stats.TotalSearches,
		"rebuilds", stats.TotalRebuilds,
	)
	return nil
}

// LatestSnapshot returns the most recent snapshot, or nil, nil when the
// table is empty.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	snaps, err := s.ListSnapshots(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

// ListSnapshots returns up to limit snapshots, newest first. Rows whose
// payload no longer decodes are logged and skipped rather than failing
// the whole read.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, data FROM analytics_snapshots ORDER BY id DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("reading snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []analytics.AggregatedStats
	for rows.Next() {
		var (
			id      int64
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(payload, &stats); err != nil {
			s.log.Warn("skipping undecodable snapshot", "id", id, "error", err)
			continue
		}
		snaps = append(snaps, stats)
	}
	return snaps, rows.Err()
}

// Prune deletes snapshots captured before now minus olderThan and reports
// how many rows went away.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM analytics_snapshots WHERE captured_at < NOW() - $1::interval`,
		olderThan.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// StartPeriodicSave snapshots the aggregator on the given interval until
// ctx is cancelled, then takes one final snapshot so the stats visible at
// shutdown are the stats restored on the next start. Old snapshots are
// pruned along the way.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.saveAndPrune(ctx, agg)
			case <-ctx.Done():
				final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := s.SaveSnapshot(final, agg.Stats()); err != nil {
					s.log.Error("final snapshot failed", "error", err)
				}
				cancel()
				return
			}
		}
	}()
	s.log.Info("periodic snapshots running", "interval", interval)
}

func (s *Store) saveAndPrune(ctx context.Context, agg *analytics.Aggregator) {
	if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
		s.log.Error("periodic snapshot failed", "error", err)
		return
	}
	if n, err := s.Prune(ctx, snapshotRetention); err != nil {
		s.log.Warn("snapshot prune failed", "error", err)
	} else if n > 0 {
		s.log.Info("old snapshots pruned", "rows", n)
	}
}
