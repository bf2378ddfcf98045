// Package health runs registered dependency probes in parallel and
// aggregates them into a report for liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Status is a component or system health state.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// probeTimeout bounds one readiness pass across all checks.
const probeTimeout = 5 * time.Second

var severity = map[Status]int{StatusUp: 0, StatusDegraded: 1, StatusDown: 2}

func worse(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// Check probes one dependency.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth is one probe's result. Latency is filled in by the
// Checker.
type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report aggregates all probes; Status is the worst component status.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// Checker holds named checks and runs them concurrently.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
	log    *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]Check),
		log:    slog.Default().With("component", "health"),
	}
}

// Register adds a named check. Re-registering a name replaces it.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run probes every registered check in parallel and aggregates the results.
// With no checks registered the report is up and empty.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	probes := make([]Check, 0, len(c.checks))
	for name, check := range c.checks {
		names = append(names, name)
		probes = append(probes, check)
	}
	c.mu.RUnlock()

	type outcome struct {
		name   string
		health ComponentHealth
	}
	outcomes := make(chan outcome, len(probes))
	for i, probe := range probes {
		go func(name string, probe Check) {
			start := time.Now()
			h := probe(ctx)
			h.Latency = time.Since(start).Round(time.Millisecond).String()
			outcomes <- outcome{name: name, health: h}
		}(names[i], probe)
	}

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(probes)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for range probes {
		o := <-outcomes
		report.Components[o.name] = o.health
		report.Status = worse(report.Status, o.health.Status)
		if o.health.Status == StatusDown {
			c.log.Warn("component down", "check", o.name, "message", o.health.Message)
		}
	}
	return report
}

// LiveHandler answers liveness probes: 200 whenever the process can serve
// HTTP at all, regardless of dependency state.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers readiness probes: 200 only when every component is
// up, 503 otherwise, with the full report as the body.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		report := c.Run(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status != StatusUp {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	}
}

// PingCheck adapts a dependency's ping function: nil is up, an error is
// down with the error text as the message.
func PingCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}
