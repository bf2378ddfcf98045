package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout bounds fn to the given duration via a derived context. The
// returned error distinguishes the deadline firing from the parent context
// being cancelled. A non-positive timeout runs fn inline with no bound.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	bounded, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn(bounded) }()

	select {
	case err := <-result:
		return err
	case <-bounded.Done():
		if parentErr := ctx.Err(); parentErr != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, parentErr)
		}
		return fmt.Errorf("%s: %w (limit %v)", name, context.DeadlineExceeded, timeout)
	}
}
