package web

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ronin-rb/ronin-web-server/webserver-srv/logger"
	"github.com/ronin-rb/ronin-web-server/webserver-srv/stats"
)

// catchAllPattern matches any path. Used by vhost rules, which gate on the
// Host header instead of the path.
var catchAllPattern = regexp.MustCompile(`^.*$`)

type basicAuthGate struct {
	username string
	password string
	realm    string
}

// App is one routing application: an ordered rule table, a default
// handler, and optional gates (basic auth, host authorization) evaluated
// before the rules. All registration happens at setup time; the rule
// table is read-only during serving and needs no locking.
type App struct {
	rules          []*Rule
	defaultHandler Handler
	auth           *basicAuthGate

	hostsAuthorized bool
	permittedHosts  []string

	resolver  ASNResolver
	collector stats.Collector

	// errorHandler converts a handler error into an HTTP response in the
	// ServeHTTP adapter. Handle itself never converts errors.
	errorHandler func(w http.ResponseWriter, r *http.Request, err error)

	timeout time.Duration
	server  *http.Server
}

// NewApp creates an empty application.
func NewApp() *App {
	return &App{
		timeout: 30 * time.Second,
	}
}

// SetResolver attaches the ASN resolver handed to each request.
func (a *App) SetResolver(resolver ASNResolver) {
	a.resolver = resolver
}

// SetCollector attaches the statistics collector recording each request.
func (a *App) SetCollector(collector stats.Collector) {
	a.collector = collector
}

// SetErrorHandler overrides how the HTTP adapter renders handler errors.
// The default is a plain 500.
func (a *App) SetErrorHandler(fn func(w http.ResponseWriter, r *http.Request, err error)) {
	a.errorHandler = fn
}

// SetTimeout sets the read/write timeout used by Run.
func (a *App) SetTimeout(timeout time.Duration) {
	a.timeout = timeout
}

func (a *App) route(methods []string, path string, handler Handler, conditions ...Condition) error {
	rule, err := NewRule(methods, path, handler, conditions...)
	if err != nil {
		return err
	}
	a.rules = append(a.rules, rule)
	return nil
}

// Get registers a GET rule.
func (a *App) Get(path string, handler Handler, conditions ...Condition) error {
	return a.route([]string{http.MethodGet}, path, handler, conditions...)
}

// Post registers a POST rule.
func (a *App) Post(path string, handler Handler, conditions ...Condition) error {
	return a.route([]string{http.MethodPost}, path, handler, conditions...)
}

// Put registers a PUT rule.
func (a *App) Put(path string, handler Handler, conditions ...Condition) error {
	return a.route([]string{http.MethodPut}, path, handler, conditions...)
}

// Patch registers a PATCH rule.
func (a *App) Patch(path string, handler Handler, conditions ...Condition) error {
	return a.route([]string{http.MethodPatch}, path, handler, conditions...)
}

// Delete registers a DELETE rule.
func (a *App) Delete(path string, handler Handler, conditions ...Condition) error {
	return a.route([]string{http.MethodDelete}, path, handler, conditions...)
}

// Options registers an OPTIONS rule.
func (a *App) Options(path string, handler Handler, conditions ...Condition) error {
	return a.route([]string{http.MethodOptions}, path, handler, conditions...)
}

// Any registers one rule matching GET, POST, PUT, PATCH, DELETE and
// OPTIONS on the path.
func (a *App) Any(path string, handler Handler, conditions ...Condition) error {
	methods := []string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}
	return a.route(methods, path, handler, conditions...)
}

// Default installs the fallback handler invoked when no rule matches.
// Without one, unmatched requests receive an empty 404.
func (a *App) Default(handler Handler) {
	a.defaultHandler = handler
}

// BasicAuth wraps the whole application in a challenge-response gate.
// Requests lacking valid credentials receive 401 before any rule is
// evaluated. An empty realm defaults to "Restricted".
func (a *App) BasicAuth(username, password, realm string) {
	if realm == "" {
		realm = "Restricted"
	}
	a.auth = &basicAuthGate{username: username, password: password, realm: realm}
}

// Redirect registers a GET rule answering 302 with the given Location.
func (a *App) Redirect(path, url string) error {
	return a.route([]string{http.MethodGet}, path, &redirectHandler{url: url})
}

// File registers a GET rule serving one local file.
func (a *App) File(path, localFile string, conditions ...Condition) error {
	return a.route([]string{http.MethodGet}, path, &fileHandler{localPath: localFile}, conditions...)
}

// Directory registers a GET rule serving files below localDir at path.
// A trailing slash on path is normalized away, so "/test/" and "/test"
// register the same route. Resolution failures, including traversal
// attempts escaping localDir, fall through to later rules.
func (a *App) Directory(path, localDir string, conditions ...Condition) error {
	handler, err := newDirectoryHandler(localDir)
	if err != nil {
		return err
	}
	trimmed := strings.TrimSuffix(path, "/")
	pattern, err := regexp.Compile(`^` + regexp.QuoteMeta(trimmed) + `/(.*)$`)
	if err != nil {
		return err
	}
	a.rules = append(a.rules, newRawRule([]string{http.MethodGet}, pattern, handler, conditions...))
	return nil
}

// PublicDir serves localDir's contents at the application root.
func (a *App) PublicDir(localDir string, conditions ...Condition) error {
	return a.Directory("/", localDir, conditions...)
}

// VHost delegates every path to target when the request's Host header
// matches hostPattern. When host authorization is active on either app
// and the pattern is an exact host, that host is appended to both
// permitted-host lists so the delegated host is not rejected by the
// Host-header check; non-exact patterns leave the lists untouched and
// the integrator authorizes the covered hosts explicitly.
func (a *App) VHost(hostPattern Matcher, target *App, conditions ...Condition) {
	if a.hostsAuthorized || target.hostsAuthorized {
		if host, ok := hostPattern.ExactValue(); ok {
			a.permittedHosts = append(a.permittedHosts, host)
			target.permittedHosts = append(target.permittedHosts, host)
		}
	}
	conds := append([]Condition{Host(hostPattern)}, conditions...)
	a.rules = append(a.rules, newRawRule(nil, catchAllPattern, &appHandler{target: target}, conds...))
}

// Mount delegates pathPrefix and its whole subtree to target, with the
// prefix stripped from the path. A trailing slash on pathPrefix is
// normalized away; a request for exactly pathPrefix reaches target's
// root path.
func (a *App) Mount(pathPrefix string, target *App, conditions ...Condition) error {
	trimmed := strings.TrimSuffix(pathPrefix, "/")
	pattern, err := regexp.Compile(`^` + regexp.QuoteMeta(trimmed) + `(?:/(.*))?$`)
	if err != nil {
		return err
	}
	a.rules = append(a.rules, newRawRule(nil, pattern, &mountHandler{target: target}, conditions...))
	return nil
}

// AuthorizeHosts enables host authorization and appends hosts to the
// permitted list. Requests with any other Host header receive 403 before
// rule evaluation.
func (a *App) AuthorizeHosts(hosts ...string) {
	a.hostsAuthorized = true
	a.permittedHosts = append(a.permittedHosts, hosts...)
}

// Handle dispatches a request through the gates and the rule table and
// returns the matched handler's response. Handler errors, including
// upstream proxy errors, propagate to the caller unconverted.
func (a *App) Handle(req *Request) (*Response, error) {
	if a.hostsAuthorized && !a.hostPermitted(req.Host) {
		logger.Debug("Rejected non-permitted host: %s", req.Host)
		return NewResponse(http.StatusForbidden), nil
	}

	if a.auth != nil {
		if !a.checkBasicAuth(req) {
			resp := NewResponse(http.StatusUnauthorized)
			resp.SetHeader("WWW-Authenticate", `Basic realm="`+a.auth.realm+`"`)
			return resp, nil
		}
	}

	if a.resolver != nil {
		req.SetResolver(a.resolver)
	}

	for _, rule := range a.rules {
		params, ok := rule.match(req)
		if !ok {
			continue
		}
		req.SetParams(params)
		resp, err := rule.handler.Handle(req)
		if errors.Is(err, ErrRouteDeclined) {
			continue
		}
		return resp, err
	}

	if a.defaultHandler != nil {
		return a.defaultHandler.Handle(req)
	}
	return NewResponse(http.StatusNotFound), nil
}

func (a *App) hostPermitted(host string) bool {
	for _, permitted := range a.permittedHosts {
		if host == permitted {
			return true
		}
	}
	return false
}

func (a *App) checkBasicAuth(req *Request) bool {
	header := req.Header.Get("Authorization")
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return false
	}
	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.auth.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.auth.password)) == 1
	return userOK && passOK
}

// ServeHTTP adapts the application to the standard server interface and
// renders handler errors via the configured error handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := NewRequest(r)

	resp, err := a.Handle(req)
	if err != nil {
		logger.Error("Request handling failed for %s %s: %v", req.Method, req.Path, err)
		status := http.StatusInternalServerError
		if a.errorHandler != nil {
			cw := &statusCapturingWriter{ResponseWriter: w, status: http.StatusOK}
			a.errorHandler(cw, r, err)
			status = cw.status
		} else {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		a.recordRequest(r.Context(), req, status, start)
		a.recordError(r.Context(), req, err)
		return
	}

	if writeErr := resp.WriteTo(w); writeErr != nil {
		logger.Debug("Failed to write response for %s %s: %v", req.Method, req.Path, writeErr)
	}
	a.recordRequest(r.Context(), req, resp.StatusCode, start)
}

// statusCapturingWriter remembers the status an error handler writes so
// the recorded statistics reflect the response the client actually saw.
type statusCapturingWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (a *App) recordError(ctx context.Context, req *Request, err error) {
	if a.collector == nil {
		return
	}
	record := stats.ProxyErrorRecord{
		Message: err.Error(),
		Host:    req.Host,
	}
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		record.Code = coded.ErrorCode()
	}
	if recordErr := a.collector.RecordProxyError(ctx, record); recordErr != nil {
		logger.Debug("Failed to record error statistics: %v", recordErr)
	}
}

func (a *App) recordRequest(ctx context.Context, req *Request, status int, start time.Time) {
	if a.collector == nil {
		return
	}
	record := stats.RequestRecord{
		ClientIP:   req.ClientIP(),
		Method:     req.Method,
		Host:       req.Host,
		Path:       req.Path,
		StatusCode: status,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err := a.collector.RecordRequest(ctx, record); err != nil {
		logger.Debug("Failed to record request statistics: %v", err)
	}
}

// Run serves the application on addr until Stop is called.
func (a *App) Run(addr string) error {
	a.server = &http.Server{
		Addr:         addr,
		Handler:      a,
		ReadTimeout:  a.timeout,
		WriteTimeout: a.timeout,
	}
	logger.Info("Server listening on %s", addr)
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down a running server.
func (a *App) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}
