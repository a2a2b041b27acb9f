package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/ronin-rb/ronin-web-server/webserver-srv/logger"
)

// Error represents a proxy error with structured information
type Error struct {
	Code        string
	Description string
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Description, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the structured code. Callers that cannot name this
// package, such as the HTTP adapter's statistics recording, discover the
// code through this method.
func (e *Error) ErrorCode() string {
	return e.Code
}

// NewProxyError creates a new Error with the given code and description
func NewProxyError(code, description string, cause error) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Cause:       cause,
	}
}

// Proxy Error Codes
const (
	// Upstream Connection and Network Errors (E2000-E2999)
	ErrCodeUpstreamConnectFailed = "E2001"
	ErrCodeUpstreamTimeout       = "E2002"
	ErrCodeDNSLookupFailed       = "E2003"
	ErrCodeTLSHandshakeFailed    = "E2004"
	ErrCodeInvalidTarget         = "E2005"

	// Request/Response Processing Errors (E3000-E3999)
	ErrCodeRequestBuildFailed = "E3001"
	ErrCodeResponseReadFailed = "E3002"
	ErrCodeRequestHookFailed  = "E3003"
	ErrCodeResponseHookFailed = "E3004"

	// Forwarding Infrastructure Errors (E6000-E6999)
	ErrCodeSocks5DialerFailed = "E6001"
)

// ErrorDescriptions maps error codes to human-readable descriptions.
var ErrorDescriptions = map[string]string{
	ErrCodeUpstreamConnectFailed: "Failed to connect to upstream server",
	ErrCodeUpstreamTimeout:       "Upstream request timed out",
	ErrCodeDNSLookupFailed:       "DNS lookup for upstream host failed",
	ErrCodeTLSHandshakeFailed:    "TLS handshake with upstream server failed",
	ErrCodeInvalidTarget:         "Invalid upstream target address",

	ErrCodeRequestBuildFailed: "Failed to build forwarded request",
	ErrCodeResponseReadFailed: "Failed to read upstream response",
	ErrCodeRequestHookFailed:  "Request interception hook failed",
	ErrCodeResponseHookFailed: "Response interception hook failed",

	ErrCodeSocks5DialerFailed: "Failed to create SOCKS5 forwarding dialer",
}

// GetErrorDescription returns the description for a given error code
func GetErrorDescription(code string) string {
	if desc, exists := ErrorDescriptions[code]; exists {
		return desc
	}
	return "Unknown error code"
}

// IsUpstreamError checks if the error is upstream-connection-related
func IsUpstreamError(err error) bool {
	var proxyErr *Error
	if errors.As(err, &proxyErr) {
		return proxyErr.Code >= "E2000" && proxyErr.Code < "E3000"
	}
	return false
}

// IsTimeoutError checks if the error is a distinguishable upstream timeout
func IsTimeoutError(err error) bool {
	var proxyErr *Error
	if errors.As(err, &proxyErr) {
		return proxyErr.Code == ErrCodeUpstreamTimeout
	}
	return false
}

// classifyUpstreamError wraps a transport error from a forward attempt
// into the matching typed proxy error.
func classifyUpstreamError(err error) *Error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NewProxyError(ErrCodeDNSLookupFailed, GetErrorDescription(ErrCodeDNSLookupFailed), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewProxyError(ErrCodeUpstreamTimeout, GetErrorDescription(ErrCodeUpstreamTimeout), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProxyError(ErrCodeUpstreamTimeout, GetErrorDescription(ErrCodeUpstreamTimeout), err)
	}

	var recordErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &recordErr) || errors.As(err, &certErr) {
		return NewProxyError(ErrCodeTLSHandshakeFailed, GetErrorDescription(ErrCodeTLSHandshakeFailed), err)
	}

	return NewProxyError(ErrCodeUpstreamConnectFailed, GetErrorDescription(ErrCodeUpstreamConnectFailed), err)
}

// NewBadGatewayResponse creates an HTTP 502 Bad Gateway page for an error
// code, with the code and its description in the HTML body.
func NewBadGatewayResponse(errorCode string) (http.Header, []byte) {
	description := GetErrorDescription(errorCode)
	title := "502 Bad Gateway"
	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; background-color: #f4f4f4; color: #333; }
        .container { background-color: #fff; padding: 20px; border-radius: 5px; box-shadow: 0 0 10px rgba(0,0,0,0.1); }
        h1 { color: #d9534f; }
        p { font-size: 1.1em; }
        .error-code { font-weight: bold; color: #c9302c; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>The server, while acting as a gateway or proxy, received an invalid response from an inbound server it accessed in attempting to fulfill the request.</p>
        <p><span class="error-code">Error Code:</span> %s</p>
        <p><span class="error-code">Description:</span> %s</p>
    </div>
</body>
</html>`, title, title, errorCode, description)

	bodyBytes := []byte(htmlBody)

	header := make(http.Header)
	header.Set("Content-Type", "text/html; charset=utf-8")
	header.Set("Content-Length", fmt.Sprintf("%d", len(bodyBytes)))
	header.Set("X-Proxy-Error", errorCode)

	return header, bodyBytes
}

// WriteErrorResponse renders a handler error as a 502 page. Intended as
// the error handler of apps whose default handler is a ReverseProxy; the
// engine itself never converts errors to responses.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, originalErr error) {
	errorCode := ErrCodeUpstreamConnectFailed
	var proxyErr *Error
	if errors.As(originalErr, &proxyErr) {
		errorCode = proxyErr.Code
	}

	if _, exists := ErrorDescriptions[errorCode]; !exists {
		logger.Warn("Error code '%s' not found in ErrorDescriptions. Original error: %v", errorCode, originalErr)
	}

	header, body := NewBadGatewayResponse(errorCode)
	for key, values := range header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(http.StatusBadGateway)
	if _, err := w.Write(body); err != nil {
		logger.Error("Failed to write bad gateway response body: %v", err)
	}
}
