package proxy

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	xproxy "golang.org/x/net/proxy"

	"github.com/ronin-rb/ronin-web-server/webserver-srv/logger"
)

// poolKey identifies one upstream client: host, port and TLS flag.
type poolKey struct {
	host string
	port int
	tls  bool
}

// ConnPool is a memoized factory of upstream HTTP clients. At most one
// client exists per (host, port, tls) key, created lazily on first use
// and never evicted for the pool's lifetime.
type ConnPool struct {
	clients *xsync.Map[poolKey, *http.Client]

	timeout     time.Duration
	insecureTLS bool

	socks5Addr string
	socks5Auth *xproxy.Auth
	dialer     xproxy.Dialer
}

// PoolOption configures a ConnPool.
type PoolOption func(*ConnPool)

// WithTimeout bounds upstream connect and response reads.
func WithTimeout(timeout time.Duration) PoolOption {
	return func(p *ConnPool) {
		p.timeout = timeout
	}
}

// WithInsecureTLS skips certificate verification on TLS upstreams.
func WithInsecureTLS() PoolOption {
	return func(p *ConnPool) {
		p.insecureTLS = true
	}
}

// WithSocks5Forward routes every upstream dial through a SOCKS5 proxy.
func WithSocks5Forward(addr string, username, password *string) PoolOption {
	return func(p *ConnPool) {
		p.socks5Addr = addr
		if username != nil {
			auth := &xproxy.Auth{User: *username}
			if password != nil {
				auth.Password = *password
			}
			p.socks5Auth = auth
		}
	}
}

// NewConnPool creates a connection pool. The SOCKS5 forwarding dialer, if
// configured, is constructed here so an invalid address fails fast.
func NewConnPool(opts ...PoolOption) (*ConnPool, error) {
	p := &ConnPool{
		clients: xsync.NewMap[poolKey, *http.Client](),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.socks5Addr != "" {
		dialer, err := xproxy.SOCKS5("tcp", p.socks5Addr, p.socks5Auth, xproxy.Direct)
		if err != nil {
			return nil, NewProxyError(ErrCodeSocks5DialerFailed, GetErrorDescription(ErrCodeSocks5DialerFailed), err)
		}
		p.dialer = dialer
		logger.Info("Forwarding upstream connections through SOCKS5 proxy %s", p.socks5Addr)
	}

	return p, nil
}

// ConnectionFor returns the pooled client for the key, creating it on
// first use. Concurrent first calls with the same key observe the same
// client instance.
func (p *ConnPool) ConnectionFor(host string, port int, useTLS bool) *http.Client {
	key := poolKey{host: host, port: port, tls: useTLS}
	client, _ := p.clients.LoadOrCompute(key, func() (*http.Client, bool) {
		logger.Debug("Creating upstream client for %s:%d (tls=%v)", host, port, useTLS)
		return p.newClient(host), false
	})
	return client
}

// Size returns the number of pooled clients. Entries are never evicted,
// so the pool grows monotonically with distinct upstream targets.
func (p *ConnPool) Size() int {
	return p.clients.Size()
}

func (p *ConnPool) newClient(host string) *http.Client {
	transport := &http.Transport{
		DialContext:       p.dialContext,
		ForceAttemptHTTP2: false,
		MaxIdleConns:      10,
		IdleConnTimeout:   90 * time.Second,
		TLSClientConfig: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: p.insecureTLS,
		},
	}
	return &http.Client{
		Transport: transport,
		Timeout:   p.timeout,
		// The proxy forwards redirects to the client instead of chasing
		// them against the upstream.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (p *ConnPool) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if p.dialer != nil {
		if cd, ok := p.dialer.(xproxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, addr)
		}
		return p.dialer.Dial(network, addr)
	}
	d := &net.Dialer{Timeout: p.timeout}
	return d.DialContext(ctx, network, addr)
}
