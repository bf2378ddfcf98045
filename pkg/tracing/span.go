// Package tracing times pipeline stages as spans. Spans nest through
// context into parent-child trees and are emitted as structured slog
// records, one line per span, carrying the shared trace id.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type spanKey struct{}

// Span is one timed operation inside a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	mu        sync.Mutex
}

func newSpan(name, traceID string) *Span {
	return &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
}

// StartSpan opens a root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	s := newSpan(name, traceID)
	return context.WithValue(ctx, spanKey{}, s), s
}

// StartChildSpan opens a span under the one carried by ctx. Without a
// parent in ctx the span starts a detached tree with no trace id.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	child := newSpan(name, "")
	if parent := SpanFromContext(ctx); parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey{}, child), child
}

// SpanFromContext returns the span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

// End stamps the span's end time and duration.
func (s *Span) End() {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// SetAttr records a key-value attribute. Safe for concurrent use.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// Log emits the span and its subtree in pre-order, tagging each record
// with its depth.
func (s *Span) Log() {
	s.emit(0)
}

func (s *Span) emit(depth int) {
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.Duration.Milliseconds(),
		"depth", depth,
	}
	s.mu.Lock()
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	children := s.Children
	s.mu.Unlock()

	slog.Info("span", attrs...)
	for _, child := range children {
		child.emit(depth + 1)
	}
}
