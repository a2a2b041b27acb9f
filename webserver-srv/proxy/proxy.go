package proxy

import (
	"bytes"
	"io"
	"net/http"
	"net/textproto"

	"github.com/ronin-rb/ronin-web-server/webserver-srv/logger"
	"github.com/ronin-rb/ronin-web-server/webserver-srv/web"
)

// hopByHopHeaders are connection-scoped headers that must not be
// forwarded to the upstream.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Proxy-Connection":    {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// RequestHook inspects or mutates the outbound request before forwarding.
type RequestHook func(req *web.Request) error

// ResponseHook inspects or mutates the assembled response in place.
type ResponseHook func(resp *web.Response) error

// RequestResponseHook receives both sides of the exchange, request first.
type RequestResponseHook func(req *web.Request, resp *web.Response) error

// ReverseProxy forwards each request to the upstream named by the
// request's own host, port and scheme, making it usable as a transparent
// intercepting proxy. It implements web.Handler; upstream failures
// propagate to the caller as typed errors, never as a built-in 502.
type ReverseProxy struct {
	pool *ConnPool

	requestHooks         []RequestHook
	responseHooks        []ResponseHook
	requestResponseHooks []RequestResponseHook
}

// NewReverseProxy creates a reverse proxy forwarding through pool.
func NewReverseProxy(pool *ConnPool) *ReverseProxy {
	return &ReverseProxy{pool: pool}
}

// OnRequest registers a hook invoked with the mutable request before each
// forward. Hooks run synchronously in registration order; a hook error
// aborts the forward.
func (p *ReverseProxy) OnRequest(hook RequestHook) {
	p.requestHooks = append(p.requestHooks, hook)
}

// OnResponse registers a hook invoked with the assembled response after
// each forward.
func (p *ReverseProxy) OnResponse(hook ResponseHook) {
	p.responseHooks = append(p.responseHooks, hook)
}

// OnRequestResponse registers a two-argument response hook receiving the
// request and the response, in that order.
func (p *ReverseProxy) OnRequestResponse(hook RequestResponseHook) {
	p.requestResponseHooks = append(p.requestResponseHooks, hook)
}

// Handle forwards the request upstream and returns the rewritten
// response.
func (p *ReverseProxy) Handle(req *web.Request) (*web.Response, error) {
	for _, hook := range p.requestHooks {
		if err := hook(req); err != nil {
			return nil, NewProxyError(ErrCodeRequestHookFailed, GetErrorDescription(ErrCodeRequestHookFailed), err)
		}
	}

	if req.Host == "" || req.Port() < 1 || req.Port() > 65535 {
		return nil, NewProxyError(ErrCodeInvalidTarget, GetErrorDescription(ErrCodeInvalidTarget), nil)
	}

	client := p.pool.ConnectionFor(req.Host, req.Port(), req.SSL())

	outReq, err := http.NewRequest(req.Method, req.URL(), bytes.NewReader(req.Body()))
	if err != nil {
		return nil, NewProxyError(ErrCodeRequestBuildFailed, GetErrorDescription(ErrCodeRequestBuildFailed), err)
	}
	copyForwardHeaders(outReq.Header, req.Header)

	logger.Debug("Forwarding %s %s to %s:%d (tls=%v)", req.Method, req.Path, req.Host, req.Port(), req.SSL())

	upstreamResp, err := client.Do(outReq)
	if err != nil {
		return nil, classifyUpstreamError(err)
	}
	defer func() {
		if closeErr := upstreamResp.Body.Close(); closeErr != nil {
			logger.Error("Error closing upstream response body: %v", closeErr)
		}
	}()

	resp := web.NewResponse(upstreamResp.StatusCode)
	resp.CopyHeaders(upstreamResp.Header)

	body, err := io.ReadAll(upstreamResp.Body)
	if err != nil {
		return nil, NewProxyError(ErrCodeResponseReadFailed, GetErrorDescription(ErrCodeResponseReadFailed), err)
	}
	if len(body) > 0 {
		resp.AppendBody(body)
	}

	for _, hook := range p.responseHooks {
		if err := hook(resp); err != nil {
			return nil, NewProxyError(ErrCodeResponseHookFailed, GetErrorDescription(ErrCodeResponseHookFailed), err)
		}
	}
	for _, hook := range p.requestResponseHooks {
		if err := hook(req, resp); err != nil {
			return nil, NewProxyError(ErrCodeResponseHookFailed, GetErrorDescription(ErrCodeResponseHookFailed), err)
		}
	}

	return resp, nil
}

// copyForwardHeaders copies end-to-end headers into the outbound request,
// skipping hop-by-hop headers and any header named in Connection.
func copyForwardHeaders(dst, src http.Header) {
	connectionScoped := map[string]struct{}{}
	for _, value := range src.Values("Connection") {
		connectionScoped[textproto.CanonicalMIMEHeaderKey(value)] = struct{}{}
	}

	for name, values := range src {
		canonical := textproto.CanonicalMIMEHeaderKey(name)
		if _, skip := hopByHopHeaders[canonical]; skip {
			continue
		}
		if _, skip := connectionScoped[canonical]; skip {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}
