package proxy

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	socks5 "github.com/armon/go-socks5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronin-rb/ronin-web-server/webserver-srv/web"
)

func TestConnectionForIdentity(t *testing.T) {
	pool := newPool(t)

	first := pool.ConnectionFor("example.com", 80, false)
	second := pool.ConnectionFor("example.com", 80, false)
	assert.Same(t, first, second, "identical keys return the same client instance")

	tlsClient := pool.ConnectionFor("example.com", 80, true)
	assert.NotSame(t, first, tlsClient, "differing tls flag yields a distinct client")

	otherPort := pool.ConnectionFor("example.com", 8080, false)
	assert.NotSame(t, first, otherPort)

	otherHost := pool.ConnectionFor("example.org", 80, false)
	assert.NotSame(t, first, otherHost)

	assert.Equal(t, 4, pool.Size())
}

func TestConnectionForConcurrentSingleCreate(t *testing.T) {
	pool := newPool(t)

	const workers = 32
	clients := make([]*http.Client, workers)

	var start sync.WaitGroup
	var done sync.WaitGroup
	start.Add(1)
	done.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()
			clients[i] = pool.ConnectionFor("example.com", 443, true)
		}(i)
	}
	start.Done()
	done.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, clients[0], clients[i], "concurrent first use must create exactly one client")
	}
	assert.Equal(t, 1, pool.Size())
}

func TestPoolNeverEvicts(t *testing.T) {
	// No TTL and no max size: the pool grows monotonically with distinct
	// targets. This is a documented simplicity tradeoff of the design,
	// asserted here so a change in behavior is noticed.
	pool := newPool(t)

	for i := 0; i < 50; i++ {
		pool.ConnectionFor(fmt.Sprintf("host-%d.example", i), 80, false)
	}
	assert.Equal(t, 50, pool.Size())

	// Re-requesting known keys does not change the pool
	for i := 0; i < 50; i++ {
		pool.ConnectionFor(fmt.Sprintf("host-%d.example", i), 80, false)
	}
	assert.Equal(t, 50, pool.Size())
}

func TestSocks5Forward(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("via socks"))
	}))
	defer upstream.Close()

	conf := &socks5.Config{}
	server, err := socks5.New(conf)
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()
	go func() { _ = server.Serve(listener) }()

	pool := newPool(t, WithSocks5Forward(listener.Addr().String(), nil, nil))
	rp := NewReverseProxy(pool)

	resp, err := rp.Handle(web.NewRequest(httptest.NewRequest(http.MethodGet, upstream.URL+"/", nil)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "via socks", string(resp.BodyBytes()))
}

func TestSocks5ForwardUnreachableProxy(t *testing.T) {
	pool := newPool(t, WithSocks5Forward("127.0.0.1:1", nil, nil))
	rp := NewReverseProxy(pool)

	resp, err := rp.Handle(web.NewRequest(httptest.NewRequest(http.MethodGet, "http://example.com/", nil)))
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.True(t, IsUpstreamError(err))
}
