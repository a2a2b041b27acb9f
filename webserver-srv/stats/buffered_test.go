package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureCollector records everything it receives so flush behavior can be
// observed without a database.
type captureCollector struct {
	mu       sync.Mutex
	requests []RequestRecord
	errors   []ProxyErrorRecord
	closed   bool
}

func (c *captureCollector) RecordRequest(ctx context.Context, record RequestRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, record)
	return nil
}

func (c *captureCollector) RecordProxyError(ctx context.Context, record ProxyErrorRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, record)
	return nil
}

func (c *captureCollector) Summary(ctx context.Context) (*Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Summary{
		TotalRequests: int64(len(c.requests)),
		TotalErrors:   int64(len(c.errors)),
		StatusCounts:  map[int]int64{},
	}, nil
}

func (c *captureCollector) HealthCheck(ctx context.Context) error { return nil }

func (c *captureCollector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *captureCollector) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests), len(c.errors)
}

func TestBufferedCollectorHoldsUntilFlush(t *testing.T) {
	capture := &captureCollector{}
	buffered := NewBufferedCollector(capture, time.Hour, 16)
	defer func() { _ = buffered.Close() }()

	ctx := context.Background()
	require.NoError(t, buffered.RecordRequest(ctx, RequestRecord{Method: "GET", Host: "example.com"}))
	require.NoError(t, buffered.RecordProxyError(ctx, ProxyErrorRecord{Code: "E2001"}))

	reqs, errs := capture.counts()
	assert.Zero(t, reqs, "records stay buffered before a flush")
	assert.Zero(t, errs)
}

func TestBufferedCollectorSummaryFlushesFirst(t *testing.T) {
	capture := &captureCollector{}
	buffered := NewBufferedCollector(capture, time.Hour, 16)
	defer func() { _ = buffered.Close() }()

	ctx := context.Background()
	require.NoError(t, buffered.RecordRequest(ctx, RequestRecord{Method: "GET", Host: "a.example"}))
	require.NoError(t, buffered.RecordRequest(ctx, RequestRecord{Method: "GET", Host: "b.example"}))

	summary, err := buffered.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.TotalRequests, "summary observes buffered writes")
}

func TestBufferedCollectorStampsTimestamps(t *testing.T) {
	capture := &captureCollector{}
	buffered := NewBufferedCollector(capture, time.Hour, 16)
	defer func() { _ = buffered.Close() }()

	ctx := context.Background()
	require.NoError(t, buffered.RecordRequest(ctx, RequestRecord{Method: "GET"}))
	_, err := buffered.Summary(ctx)
	require.NoError(t, err)

	capture.mu.Lock()
	defer capture.mu.Unlock()
	require.Len(t, capture.requests, 1)
	assert.False(t, capture.requests[0].Timestamp.IsZero())
}

func TestBufferedCollectorCloseFlushesAndCloses(t *testing.T) {
	capture := &captureCollector{}
	buffered := NewBufferedCollector(capture, time.Hour, 16)

	ctx := context.Background()
	require.NoError(t, buffered.RecordRequest(ctx, RequestRecord{Method: "GET"}))
	require.NoError(t, buffered.RecordProxyError(ctx, ProxyErrorRecord{Code: "E2002"}))

	require.NoError(t, buffered.Close())

	reqs, errs := capture.counts()
	assert.Equal(t, 1, reqs, "pending records are flushed on close")
	assert.Equal(t, 1, errs)
	assert.True(t, capture.closed)
}

func TestBufferedCollectorPeriodicFlush(t *testing.T) {
	capture := &captureCollector{}
	buffered := NewBufferedCollector(capture, 20*time.Millisecond, 16)
	defer func() { _ = buffered.Close() }()

	require.NoError(t, buffered.RecordRequest(context.Background(), RequestRecord{Method: "GET"}))

	assert.Eventually(t, func() bool {
		reqs, _ := capture.counts()
		return reqs == 1
	}, time.Second, 10*time.Millisecond, "ticker flush delivers buffered records")
}
