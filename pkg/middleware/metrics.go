// Package middleware holds the HTTP middleware chain pieces: request ids,
// CORS, per-client rate limiting, request timeouts, and Prometheus
// instrumentation.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/paperscope/paperscope/pkg/metrics"
)

// Metrics records request counts by method/path/status, request latency,
// and the in-flight gauge.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				m.HTTPRequestsInFlight.Dec()
				path := normalizePath(r.URL.Path)
				m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
				m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

// statusRecorder captures the status code; an implicit 200 from a bare
// Write is recorded as such.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rec *statusRecorder) WriteHeader(code int) {
	if !rec.wroteHeader {
		rec.status = code
		rec.wroteHeader = true
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	rec.wroteHeader = true
	return rec.ResponseWriter.Write(b)
}

// normalizePath collapses paper-detail paths so the path label stays low
// cardinality.
func normalizePath(path string) string {
	const papersPrefix = "/api/v1/papers/"
	if len(path) > len(papersPrefix) && path[:len(papersPrefix)] == papersPrefix {
		return papersPrefix + "{id}"
	}
	return path
}
