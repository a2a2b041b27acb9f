package stats

import "context"

// DummyCollector is a no-op implementation of Collector
// It does nothing and is used when statistics collection is disabled
type DummyCollector struct{}

// NewDummyCollector creates a new dummy collector
func NewDummyCollector() *DummyCollector {
	return &DummyCollector{}
}

// RecordRequest records a dispatched request (no-op)
func (d *DummyCollector) RecordRequest(ctx context.Context, record RequestRecord) error {
	return nil
}

// RecordProxyError records an upstream failure (no-op)
func (d *DummyCollector) RecordProxyError(ctx context.Context, record ProxyErrorRecord) error {
	return nil
}

// Summary returns an empty summary
func (d *DummyCollector) Summary(ctx context.Context) (*Summary, error) {
	return &Summary{StatusCounts: map[int]int64{}}, nil
}

// HealthCheck always succeeds
func (d *DummyCollector) HealthCheck(ctx context.Context) error {
	return nil
}

// Close cleans up resources (no-op)
func (d *DummyCollector) Close() error {
	return nil
}
