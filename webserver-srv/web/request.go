package web

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/mileusna/useragent"

	"github.com/ronin-rb/ronin-web-server/webserver-srv/logger"
)

// ASNRecord holds the result of an autonomous-system lookup for an IP.
type ASNRecord struct {
	Number      uint32
	CountryCode string
	Name        string
}

// ASNResolver looks up the autonomous system owning an IP address.
// Implementations wrap whatever geolocation source the integrator has.
type ASNResolver interface {
	Lookup(ip string) (*ASNRecord, error)
}

// DeviceClass is the coarse device classification parsed from a User-Agent.
type DeviceClass string

const (
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
	DeviceDesktop DeviceClass = "desktop"
	DeviceBot     DeviceClass = "bot"
	DeviceUnknown DeviceClass = "unknown"
)

// UserAgentInfo holds the parsed fields of a User-Agent header.
type UserAgentInfo struct {
	Name      string
	Vendor    string
	Version   string
	OS        string
	OSVersion string
	Device    DeviceClass
}

// browserVendors maps well-known browser names to their vendor.
var browserVendors = map[string]string{
	useragent.Chrome:    "Google",
	useragent.Safari:    "Apple",
	useragent.Firefox:   "Mozilla",
	useragent.Edge:      "Microsoft",
	useragent.Opera:     "Opera",
	"Chromium":          "Google",
	"Internet Explorer": "Microsoft",
}

// Request wraps one inbound HTTP exchange with mutable routing state.
// Conditions and the proxy observe the same instance during a request's
// lifecycle; it is never reused across requests.
type Request struct {
	Method string
	Host   string
	Scheme string
	Path   string
	Query  string
	Header http.Header

	port         int
	portExplicit bool

	raw      *http.Request
	body     []byte
	bodyRead bool
	params   []string

	resolver ASNResolver
	asn      *ASNRecord
	asnDone  bool

	ua     *UserAgentInfo
	uaDone bool
}

// NewRequest builds a Request from an inbound exchange. Host and port are
// derived from the Host header; scheme from the connection's TLS state.
func NewRequest(r *http.Request) *Request {
	req := &Request{
		Method: r.Method,
		Scheme: "http",
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header,
		port:   80,
		raw:    r,
	}
	if r.TLS != nil {
		req.Scheme = "https"
		req.port = 443
	}

	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	if h, p, err := net.SplitHostPort(host); err == nil {
		req.Host = h
		if n, convErr := strconv.Atoi(p); convErr == nil {
			req.port = n
			req.portExplicit = true
		}
	} else {
		req.Host = host
	}
	return req
}

// Port returns the request's target port.
func (req *Request) Port() int {
	return req.port
}

// SetPort overrides the target port. An explicit port survives later
// SetSSL calls.
func (req *Request) SetPort(port int) {
	req.port = port
	req.portExplicit = true
}

// SSL reports whether the request targets an https origin.
func (req *Request) SSL() bool {
	return req.Scheme == "https"
}

// SetSSL switches the request between http and https. Enabling SSL sets
// port 443 unless the port was explicitly overridden; disabling it always
// resets to http on port 80.
func (req *Request) SetSSL(ssl bool) {
	if ssl {
		req.Scheme = "https"
		if !req.portExplicit {
			req.port = 443
		}
	} else {
		req.Scheme = "http"
		req.port = 80
		req.portExplicit = false
	}
}

// Body reads and returns the request body. The underlying stream is read
// at most once; subsequent calls return the cached bytes.
func (req *Request) Body() []byte {
	if !req.bodyRead {
		req.bodyRead = true
		if req.raw != nil && req.raw.Body != nil {
			data, err := io.ReadAll(req.raw.Body)
			if err != nil {
				logger.Error("Failed to read request body: %v", err)
			}
			req.body = data
		}
	}
	return req.body
}

// SetBody replaces the request body.
func (req *Request) SetBody(body []byte) {
	req.body = body
	req.bodyRead = true
}

// ClientIP returns the remote peer's IP without the port.
func (req *Request) ClientIP() string {
	if req.raw == nil {
		return ""
	}
	if ip, _, err := net.SplitHostPort(req.raw.RemoteAddr); err == nil {
		return ip
	}
	return req.raw.RemoteAddr
}

// Referer returns the Referer header, empty when absent.
func (req *Request) Referer() string {
	return req.Header.Get("Referer")
}

// UserAgent returns the raw User-Agent header, empty when absent.
func (req *Request) UserAgent() string {
	return req.Header.Get("User-Agent")
}

// Cookie returns the named cookie's value, empty when absent.
func (req *Request) Cookie(name string) string {
	if req.raw == nil {
		return ""
	}
	if c, err := req.raw.Cookie(name); err == nil {
		return c.Value
	}
	return ""
}

// Params returns the positional path-pattern captures of the matched rule.
func (req *Request) Params() []string {
	return req.params
}

// SetParams stores the positional captures for the current dispatch.
func (req *Request) SetParams(params []string) {
	req.params = params
}

// SetResolver attaches the ASN resolver used by ASN lookups.
func (req *Request) SetResolver(resolver ASNResolver) {
	req.resolver = resolver
}

// ASN looks up the autonomous system of the client IP. The lookup runs at
// most once per request; nil means no resolver is attached or the lookup
// failed.
func (req *Request) ASN() *ASNRecord {
	if !req.asnDone {
		req.asnDone = true
		if req.resolver != nil {
			ip := req.ClientIP()
			if ip != "" {
				record, err := req.resolver.Lookup(ip)
				if err != nil {
					logger.Debug("ASN lookup failed for %s: %v", ip, err)
				} else {
					req.asn = record
				}
			}
		}
	}
	return req.asn
}

// UserAgentInfo parses the User-Agent header. Parsing runs at most once
// per request; nil means the header is absent.
func (req *Request) UserAgentInfo() *UserAgentInfo {
	if !req.uaDone {
		req.uaDone = true
		raw := req.UserAgent()
		if raw != "" {
			parsed := useragent.Parse(raw)
			req.ua = &UserAgentInfo{
				Name:      parsed.Name,
				Vendor:    browserVendors[parsed.Name],
				Version:   parsed.Version,
				OS:        parsed.OS,
				OSVersion: parsed.OSVersion,
				Device:    deviceClass(parsed),
			}
		}
	}
	return req.ua
}

func deviceClass(parsed useragent.UserAgent) DeviceClass {
	switch {
	case parsed.Bot:
		return DeviceBot
	case parsed.Mobile:
		return DeviceMobile
	case parsed.Tablet:
		return DeviceTablet
	case parsed.Desktop:
		return DeviceDesktop
	default:
		return DeviceUnknown
	}
}

// URL assembles the request's absolute target URL.
func (req *Request) URL() string {
	var sb strings.Builder
	sb.Grow(len(req.Scheme) + len(req.Host) + len(req.Path) + len(req.Query) + 16)
	sb.WriteString(req.Scheme)
	sb.WriteString("://")
	sb.WriteString(req.Host)
	if !defaultPort(req.Scheme, req.port) {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(req.port))
	}
	sb.WriteString(req.Path)
	if req.Query != "" {
		sb.WriteByte('?')
		sb.WriteString(req.Query)
	}
	return sb.String()
}

func defaultPort(scheme string, port int) bool {
	return (scheme == "http" && port == 80) || (scheme == "https" && port == 443)
}
