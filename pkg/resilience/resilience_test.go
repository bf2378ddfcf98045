package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

var errBoom = errors.New("backend down")

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker("arxiv", CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
	})

	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("failure %d: err = %v, want errBoom", i+1, err)
		}
	}
	if got := cb.GetState(); got != StateClosed {
		t.Fatalf("state after 2 failures = %v, want closed", got)
	}

	cb.Execute(func() error { return errBoom })
	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("state after 3rd failure = %v, want open", got)
	}

	calls := 0
	err := cb.Execute(func() error { calls++; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if calls != 0 {
		t.Errorf("fn called %d times while circuit open, want 0", calls)
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("redis", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
	})

	cb.Execute(func() error { return errBoom })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errBoom })
	if got := cb.GetState(); got != StateClosed {
		t.Fatalf("state = %v, want closed (success should reset the streak)", got)
	}

	cb.Execute(func() error { return errBoom })
	if got := cb.GetState(); got != StateOpen {
		t.Errorf("state = %v, want open after 2 consecutive failures", got)
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("arxiv", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     30 * time.Millisecond,
	})

	cb.Execute(func() error { return errBoom })
	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("call during cool-down: err = %v, want ErrCircuitOpen", err)
	}

	time.Sleep(50 * time.Millisecond)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe after cool-down: %v", err)
	}
	if got := cb.GetState(); got != StateClosed {
		t.Errorf("state after successful probe = %v, want closed", got)
	}
}

func TestCircuitBreakerHalfOpenProbeFails(t *testing.T) {
	cb := NewCircuitBreaker("arxiv", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     30 * time.Millisecond,
	})

	cb.Execute(func() error { return errBoom })
	time.Sleep(50 * time.Millisecond)

	if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("probe err = %v, want errBoom", err)
	}
	if got := cb.GetState(); got != StateOpen {
		t.Errorf("state after failed probe = %v, want open again", got)
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen right after re-open", err)
	}
}

func TestCircuitBreakerHalfOpenProbeLimit(t *testing.T) {
	cb := NewCircuitBreaker("arxiv", CircuitBreakerConfig{
		FailureThreshold:    1,
		ResetTimeout:        10 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	})

	cb.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	// The request that flips open->half-open is not counted against the probe
	// budget, so two in-flight requests are possible before the limit bites.
	entered := make(chan struct{})
	release := make(chan struct{})
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			results <- cb.Execute(func() error {
				entered <- struct{}{}
				<-release
				return nil
			})
		}()
		<-entered
	}

	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("third concurrent request: err = %v, want ErrCircuitOpen", err)
	}

	close(release)
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			t.Errorf("admitted request returned %v", err)
		}
	}
	if got := cb.GetState(); got != StateClosed {
		t.Errorf("state after successful probes = %v, want closed", got)
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker("arxiv", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	})

	cb.Execute(func() error { return errBoom })
	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	cb.Reset()
	if got := cb.GetState(); got != StateClosed {
		t.Fatalf("state after Reset = %v, want closed", got)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("call after Reset: %v", err)
	}
}

func TestCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker("defaults", CircuitBreakerConfig{})
	if cb.cfg.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", cb.cfg.FailureThreshold)
	}
	if cb.cfg.ResetTimeout != 30*time.Second {
		t.Errorf("ResetTimeout = %v, want 30s", cb.cfg.ResetTimeout)
	}
	if cb.cfg.HalfOpenMaxRequests != 1 {
		t.Errorf("HalfOpenMaxRequests = %d, want 1", cb.cfg.HalfOpenMaxRequests)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestRetryFirstAttemptSucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "fetch", RetryConfig{}, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryEventualSuccess(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
	calls := 0
	err := Retry(context.Background(), "fetch", cfg, func() error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
	calls := 0
	err := Retry(context.Background(), "fetch", cfg, func() error {
		calls++
		return errBoom
	})
	if err == nil {
		t.Fatal("Retry returned nil, want error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want wrapped errBoom", err)
	}
	if !strings.Contains(err.Error(), "all 3 attempts failed for fetch") {
		t.Errorf("err = %q, want attempt summary in message", err)
	}
}

func TestRetryAbortsDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
	}
	calls := 0
	start := time.Now()
	err := Retry(ctx, "fetch", cfg, func() error {
		calls++
		return errBoom
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if !strings.Contains(err.Error(), "retry aborted during backoff") {
		t.Errorf("err = %q, want backoff abort message", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (cancellation must stop further attempts)", calls)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Retry took %v, should abort well before the 500ms backoff", elapsed)
	}
}

func TestComputeDelay(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}

	for i := 0; i < 100; i++ {
		d1 := computeDelay(1, cfg)
		if d1 < 90*time.Millisecond || d1 > 110*time.Millisecond {
			t.Fatalf("attempt 1 delay = %v, want 100ms +/- 10%%", d1)
		}
		d3 := computeDelay(3, cfg)
		if d3 < 360*time.Millisecond || d3 > 440*time.Millisecond {
			t.Fatalf("attempt 3 delay = %v, want 400ms +/- 10%%", d3)
		}
		if capped := computeDelay(10, cfg); capped > time.Second {
			t.Fatalf("attempt 10 delay = %v, want capped at MaxDelay", capped)
		}
	}
}

func TestWithTimeoutCompletes(t *testing.T) {
	err := WithTimeout(context.Background(), time.Second, "search", func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("WithTimeout: %v", err)
	}
}

func TestWithTimeoutPropagatesError(t *testing.T) {
	err := WithTimeout(context.Background(), time.Second, "search", func(ctx context.Context) error {
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want errBoom", err)
	}
}

func TestWithTimeoutExpires(t *testing.T) {
	err := WithTimeout(context.Background(), 20*time.Millisecond, "search", func(ctx context.Context) error {
		// Linger past the deadline so the caller reports the timeout rather
		// than racing with this return value.
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if !strings.Contains(err.Error(), "search") {
		t.Errorf("err = %q, want operation name in message", err)
	}
}

func TestWithTimeoutParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	err := WithTimeout(ctx, time.Second, "search", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want Canceled", err)
	}
	if !strings.Contains(err.Error(), "parent context cancelled") {
		t.Errorf("err = %q, want parent-cancel message", err)
	}
}

func TestWithTimeoutZeroRunsInline(t *testing.T) {
	called := false
	err := WithTimeout(context.Background(), 0, "search", func(ctx context.Context) error {
		called = true
		if _, ok := ctx.Deadline(); ok {
			t.Error("zero timeout should not attach a deadline")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTimeout: %v", err)
	}
	if !called {
		t.Error("fn not called")
	}
}
