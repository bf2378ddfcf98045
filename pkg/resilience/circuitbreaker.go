// Package resilience provides the fault-tolerance primitives used around
// outbound calls: a circuit breaker, exponential-backoff retry, and a
// context timeout wrapper.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned for requests rejected while the breaker is
// refusing traffic.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker phase: closed (normal), open (rejecting), or
// half-open (probing).
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig tunes when the breaker trips and how it recovers.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that trips the
	// breaker open.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before admitting
	// probe traffic.
	ResetTimeout time.Duration
	// HalfOpenMaxRequests caps the probes admitted while half-open, not
	// counting the request whose arrival ended the cool-down.
	HalfOpenMaxRequests int
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = 1
	}
	return c
}

// CircuitBreaker rejects calls outright after a run of failures, giving the
// downstream service a cool-down before probe traffic is let through.
type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerConfig
	log  *slog.Logger

	mu             sync.Mutex
	state          State
	streak         int       // consecutive failures in the current run
	lastFailure    time.Time // cool-down is measured from here
	probesAdmitted int
}

// NewCircuitBreaker returns a closed breaker. Zero config fields take the
// package defaults (5 failures, 30s cool-down, 1 probe).
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name: name,
		cfg:  cfg.withDefaults(),
		log:  slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn unless the breaker rejects the call, and feeds the outcome
// back into the failure accounting.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.observe(err)
	return err
}

// GetState reports the current breaker phase.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed and clears the failure run.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.streak = 0
	cb.probesAdmitted = 0
	cb.log.Info("circuit manually reset")
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		remaining := cb.cfg.ResetTimeout - time.Since(cb.lastFailure)
		if remaining > 0 {
			return fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, remaining)
		}
		// Cool-down over. This request becomes the first probe; the
		// admission budget starts counting from the next one.
		cb.state = StateHalfOpen
		cb.probesAdmitted = 0
		cb.log.Info("circuit half-open, admitting probes", "cooled_down", cb.cfg.ResetTimeout)
		return nil

	case StateHalfOpen:
		if cb.probesAdmitted >= cb.cfg.HalfOpenMaxRequests {
			return fmt.Errorf("%w: %s (half-open probe limit reached)", ErrCircuitOpen, cb.name)
		}
		cb.probesAdmitted++
		return nil
	}
	return nil
}

func (cb *CircuitBreaker) observe(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.state = StateClosed
			cb.probesAdmitted = 0
			cb.log.Info("circuit closed, downstream recovered")
		}
		cb.streak = 0
		return
	}

	cb.lastFailure = time.Now()
	cb.streak++
	switch cb.state {
	case StateClosed:
		if cb.streak >= cb.cfg.FailureThreshold {
			cb.state = StateOpen
			cb.log.Warn("circuit opened",
				"consecutive_failures", cb.streak,
				"threshold", cb.cfg.FailureThreshold,
			)
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.log.Warn("circuit re-opened, probe failed")
	}
}
