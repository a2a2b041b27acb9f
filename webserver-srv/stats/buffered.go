package stats

import (
	"context"
	"sync"
	"time"

	"github.com/ronin-rb/ronin-web-server/webserver-srv/logger"
)

// BufferedCollector batches records in memory and flushes them to the
// underlying collector on a fixed interval. Summary and HealthCheck pass
// through after forcing a flush so reads observe buffered writes.
type BufferedCollector struct {
	underlying Collector
	interval   time.Duration

	buffer struct {
		requests []RequestRecord
		errors   []ProxyErrorRecord
		mu       sync.Mutex
	}

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewBufferedCollector creates a buffered collector with the given flush
// interval. A zero interval defaults to 5 seconds.
func NewBufferedCollector(underlying Collector, interval time.Duration, bufferSize int) *BufferedCollector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}

	bc := &BufferedCollector{
		underlying: underlying,
		interval:   interval,
		stopChan:   make(chan struct{}),
	}
	bc.buffer.requests = make([]RequestRecord, 0, bufferSize)
	bc.buffer.errors = make([]ProxyErrorRecord, 0, bufferSize)

	bc.wg.Add(1)
	go bc.flusher()

	return bc
}

func (b *BufferedCollector) flusher() {
	defer b.wg.Done()

	logger.Debug("Starting buffered stats flusher with interval %s", b.interval)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flush()
		case <-b.stopChan:
			b.flush()
			return
		}
	}
}

func (b *BufferedCollector) flush() {
	b.buffer.mu.Lock()
	requests := b.buffer.requests
	errors := b.buffer.errors
	b.buffer.requests = make([]RequestRecord, 0, cap(requests))
	b.buffer.errors = make([]ProxyErrorRecord, 0, cap(errors))
	b.buffer.mu.Unlock()

	ctx := context.Background()
	for _, record := range requests {
		if err := b.underlying.RecordRequest(ctx, record); err != nil {
			logger.Error("Failed to flush request record: %v", err)
		}
	}
	for _, record := range errors {
		if err := b.underlying.RecordProxyError(ctx, record); err != nil {
			logger.Error("Failed to flush proxy error record: %v", err)
		}
	}
}

// RecordRequest buffers a request record
func (b *BufferedCollector) RecordRequest(ctx context.Context, record RequestRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	b.buffer.mu.Lock()
	b.buffer.requests = append(b.buffer.requests, record)
	b.buffer.mu.Unlock()
	return nil
}

// RecordProxyError buffers a proxy error record
func (b *BufferedCollector) RecordProxyError(ctx context.Context, record ProxyErrorRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	b.buffer.mu.Lock()
	b.buffer.errors = append(b.buffer.errors, record)
	b.buffer.mu.Unlock()
	return nil
}

// Summary flushes pending records and queries the underlying collector
func (b *BufferedCollector) Summary(ctx context.Context) (*Summary, error) {
	b.flush()
	return b.underlying.Summary(ctx)
}

// HealthCheck delegates to the underlying collector
func (b *BufferedCollector) HealthCheck(ctx context.Context) error {
	return b.underlying.HealthCheck(ctx)
}

// Close stops the flusher, flushes remaining records and closes the
// underlying collector
func (b *BufferedCollector) Close() error {
	close(b.stopChan)
	b.wg.Wait()
	return b.underlying.Close()
}
