package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Timeout cancels the request context after d and answers 504 when the
// handler has not produced a response by then. Whichever side writes first
// owns the response; the loser's writes are discarded.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			dw := &deadlineWriter{inner: w}
			finished := make(chan struct{})
			go func() {
				defer close(finished)
				next.ServeHTTP(dw, r.WithContext(ctx))
			}()

			select {
			case <-finished:
			case <-ctx.Done():
				if dw.claim(timeoutSide) {
					slog.Warn("request timed out",
						"method", r.Method,
						"path", r.URL.Path,
						"timeout", d,
					)
					http.Error(w, `{"error":"request timeout"}`, http.StatusGatewayTimeout)
				}
			}
		})
	}
}

const (
	unclaimed int32 = iota
	handlerSide
	timeoutSide
)

// deadlineWriter serializes response ownership between the handler
// goroutine and the timeout reply.
type deadlineWriter struct {
	inner http.ResponseWriter
	owner atomic.Int32
}

// claim reports whether side may write: it wins the writer when unclaimed,
// or already owns it.
func (w *deadlineWriter) claim(side int32) bool {
	return w.owner.CompareAndSwap(unclaimed, side) || w.owner.Load() == side
}

func (w *deadlineWriter) Header() http.Header { return w.inner.Header() }

func (w *deadlineWriter) WriteHeader(code int) {
	if w.claim(handlerSide) {
		w.inner.WriteHeader(code)
	}
}

func (w *deadlineWriter) Write(b []byte) (int, error) {
	if !w.claim(handlerSide) {
		return len(b), nil // timeout reply already sent
	}
	return w.inner.Write(b)
}
