package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// TestHTTPServer represents a stub upstream origin for testing
type TestHTTPServer struct {
	server   *http.Server
	listener net.Listener
	URL      string
	port     int
}

// TestServerConfig holds configuration for the stub upstream
type TestServerConfig struct {
	Content string
	Status  int
	Headers map[string]string
	Delay   time.Duration
	Chunked bool // force chunked transfer encoding on the response
}

// NewTestHTTPServer creates a stub upstream on a random port
func NewTestHTTPServer(config TestServerConfig) (*TestHTTPServer, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	url := fmt.Sprintf("http://127.0.0.1:%d", port)

	server := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: http.HandlerFunc(config.handler),
	}

	testServer := &TestHTTPServer{
		server:   server,
		listener: listener,
		URL:      url,
		port:     port,
	}

	go func() {
		_ = server.Serve(listener) // Ignore error - test server
	}()

	// Wait a moment for server to start
	time.Sleep(50 * time.Millisecond)

	return testServer, nil
}

func (c TestServerConfig) handler(w http.ResponseWriter, r *http.Request) {
	if c.Delay > 0 {
		time.Sleep(c.Delay)
	}

	for key, value := range c.Headers {
		w.Header().Set(key, value)
	}

	if c.Chunked {
		// Omitting Content-Length and flushing forces chunked framing
		w.WriteHeader(c.Status)
		if _, err := w.Write([]byte(c.Content)); err == nil {
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
		return
	}

	w.WriteHeader(c.Status)
	_, _ = w.Write([]byte(c.Content))
}

// Stop stops the stub upstream gracefully
func (s *TestHTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// GetPort returns the stub upstream's port
func (s *TestHTTPServer) GetPort() int {
	return s.port
}
