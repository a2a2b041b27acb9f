package web

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestDerivesTarget(t *testing.T) {
	r := httptest.NewRequest("GET", "http://example.com/path?x=1", nil)
	req := NewRequest(r)

	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "example.com", req.Host)
	assert.Equal(t, 80, req.Port())
	assert.Equal(t, "http", req.Scheme)
	assert.Equal(t, "/path", req.Path)
	assert.Equal(t, "x=1", req.Query)
	assert.False(t, req.SSL())
}

func TestNewRequestExplicitPort(t *testing.T) {
	r := httptest.NewRequest("GET", "http://example.com:8080/", nil)
	req := NewRequest(r)

	assert.Equal(t, "example.com", req.Host)
	assert.Equal(t, 8080, req.Port())
}

func TestSetSSL(t *testing.T) {
	t.Run("enabling switches to https on 443", func(t *testing.T) {
		req := NewRequest(httptest.NewRequest("GET", "http://example.com/", nil))
		req.SetSSL(true)
		assert.Equal(t, "https", req.Scheme)
		assert.Equal(t, 443, req.Port())
	})

	t.Run("enabling keeps an explicitly overridden port", func(t *testing.T) {
		req := NewRequest(httptest.NewRequest("GET", "http://example.com/", nil))
		req.SetPort(8443)
		req.SetSSL(true)
		assert.Equal(t, "https", req.Scheme)
		assert.Equal(t, 8443, req.Port())
	})

	t.Run("enabling keeps a port from the Host header", func(t *testing.T) {
		req := NewRequest(httptest.NewRequest("GET", "http://example.com:8080/", nil))
		req.SetSSL(true)
		assert.Equal(t, "https", req.Scheme)
		assert.Equal(t, 8080, req.Port())
	})

	t.Run("disabling forces http on 80", func(t *testing.T) {
		req := NewRequest(httptest.NewRequest("GET", "http://example.com:8443/", nil))
		req.SetSSL(true)
		req.SetSSL(false)
		assert.Equal(t, "http", req.Scheme)
		assert.Equal(t, 80, req.Port())
	})
}

func TestBodyReadOnce(t *testing.T) {
	r := httptest.NewRequest("POST", "http://example.com/", strings.NewReader("hello"))
	req := NewRequest(r)

	assert.Equal(t, []byte("hello"), req.Body())
	// The underlying stream is drained; the cached bytes are returned
	assert.Equal(t, []byte("hello"), req.Body())

	req.SetBody([]byte("rewritten"))
	assert.Equal(t, []byte("rewritten"), req.Body())
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "http://example.com/", nil)
	r.RemoteAddr = "203.0.113.7:54321"
	req := NewRequest(r)

	assert.Equal(t, "203.0.113.7", req.ClientIP())
}

func TestUserAgentInfo(t *testing.T) {
	const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	r := httptest.NewRequest("GET", "http://example.com/", nil)
	r.Header.Set("User-Agent", chromeUA)
	req := NewRequest(r)

	info := req.UserAgentInfo()
	require.NotNil(t, info)
	assert.Equal(t, "Chrome", info.Name)
	assert.Equal(t, "Google", info.Vendor)
	assert.Equal(t, "Windows", info.OS)
	assert.Equal(t, DeviceDesktop, info.Device)

	// Parsing is memoized
	assert.Same(t, info, req.UserAgentInfo())
}

func TestUserAgentInfoAbsent(t *testing.T) {
	req := NewRequest(httptest.NewRequest("GET", "http://example.com/", nil))
	req.Header.Del("User-Agent")
	assert.Nil(t, req.UserAgentInfo())
}

func TestRequestURL(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(req *Request)
		expected string
	}{
		{
			name:     "default port omitted",
			mutate:   func(req *Request) {},
			expected: "http://example.com/path?x=1",
		},
		{
			name:     "explicit port included",
			mutate:   func(req *Request) { req.SetPort(8080) },
			expected: "http://example.com:8080/path?x=1",
		},
		{
			name:     "https default port omitted",
			mutate:   func(req *Request) { req.SetSSL(true) },
			expected: "https://example.com/path?x=1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := NewRequest(httptest.NewRequest("GET", "http://example.com/path?x=1", nil))
			tc.mutate(req)
			assert.Equal(t, tc.expected, req.URL())
		})
	}
}
