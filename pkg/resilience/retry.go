package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig tunes the backoff schedule. Zero fields take the defaults:
// 3 attempts, 100ms initial delay doubling per attempt, 10s cap, 10% jitter.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.1
	}
	return c
}

// Retry runs fn up to cfg.MaxAttempts times, sleeping an exponentially
// growing, jittered delay between attempts. Context cancellation cuts the
// backoff short; the final error wraps the last attempt's error.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	log := slog.Default().With("component", "retry", "operation", name)

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				log.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("all %d attempts failed for %s: %w", cfg.MaxAttempts, name, lastErr)
		}

		delay := computeDelay(attempt, cfg)
		log.Warn("operation failed, backing off",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"error", lastErr,
			"next_delay", delay,
		)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted during backoff: %w", ctx.Err())
		}
	}
}

// computeDelay returns InitialDelay * Multiplier^(attempt-1) with symmetric
// jitter applied, capped at MaxDelay.
func computeDelay(attempt int, cfg RetryConfig) time.Duration {
	base := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	jittered := base * (1 + cfg.JitterFraction*(2*rand.Float64()-1))
	switch {
	case jittered > float64(cfg.MaxDelay):
		jittered = float64(cfg.MaxDelay)
	case jittered < 0:
		jittered = float64(cfg.InitialDelay)
	}
	return time.Duration(jittered)
}
