package stats

import (
	"context"
	"time"
)

// RequestRecord holds the facts recorded for one dispatched request.
type RequestRecord struct {
	ClientIP   string
	Method     string
	Host       string
	Path       string
	StatusCode int
	DurationMs int64
	Timestamp  time.Time
}

// ProxyErrorRecord holds one upstream proxy failure.
type ProxyErrorRecord struct {
	Code      string
	Message   string
	Host      string
	Timestamp time.Time
}

// Summary provides the aggregate view served by the portal.
type Summary struct {
	TotalRequests int64            `json:"total_requests"`
	TotalErrors   int64            `json:"total_errors"`
	StatusCounts  map[int]int64    `json:"status_counts"`
	TopHosts      []HostStats      `json:"top_hosts"`
	RecentErrors  []ProxyErrorInfo `json:"recent_errors"`
}

// HostStats represents request statistics for one host.
type HostStats struct {
	Host         string `json:"host"`
	RequestCount int64  `json:"request_count"`
}

// ProxyErrorInfo represents one proxy error in summary output.
type ProxyErrorInfo struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Host      string    `json:"host"`
	Timestamp time.Time `json:"timestamp"`
}

// Collector defines the interface for collecting server statistics
type Collector interface {
	// Request tracking
	RecordRequest(ctx context.Context, record RequestRecord) error

	// Error tracking
	RecordProxyError(ctx context.Context, record ProxyErrorRecord) error

	// Summary queries
	Summary(ctx context.Context) (*Summary, error)

	// Health check
	HealthCheck(ctx context.Context) error

	// Close cleans up resources
	Close() error
}
