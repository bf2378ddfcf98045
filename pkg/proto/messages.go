// Package proto defines the message types for the admin RPC surface between
// searchctl and the search service.
//
// The types are hand-written with JSON struct tags for serialization over
// the lightweight JSON-over-TCP RPC layer (see pkg/grpc).
package proto

// HealthCheckResponse mirrors the gRPC health check spec.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}

// ---------- Admin ----------

// RebuildRequest asks the search service for an immediate index rebuild.
// With Wait set the call blocks until the rebuild finishes; otherwise it
// returns as soon as the rebuild is scheduled.
type RebuildRequest struct {
	Wait bool `json:"wait"`
}

// RebuildResponse reports the outcome of a rebuild request.
type RebuildResponse struct {
	Started   bool    `json:"started"`
	Completed bool    `json:"completed"`
	DocCount  int64   `json:"doc_count,omitempty"`
	TermCount int64   `json:"term_count,omitempty"`
	AvgDocLen float64 `json:"avg_doc_len,omitempty"`
	TookMs    int64   `json:"took_ms,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// StatsRequest has no parameters.
type StatsRequest struct{}

// StatsResponse reports the live index and cache state.
type StatsResponse struct {
	Ready       bool    `json:"ready"`
	DocCount    int64   `json:"doc_count"`
	TermCount   int64   `json:"term_count"`
	TotalTokens int64   `json:"total_tokens"`
	AvgDocLen   float64 `json:"avg_doc_len"`
	BuiltAt     int64   `json:"built_at,omitempty"` // unix seconds
	CacheHits   int64   `json:"cache_hits"`
	CacheMisses int64   `json:"cache_misses"`
}

// InvalidateRequest has no parameters.
type InvalidateRequest struct{}

// InvalidateResponse confirms the cache flush.
type InvalidateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
