package web

import (
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ronin-rb/ronin-web-server/webserver-srv/logger"
)

// Handler processes one dispatched request into a response. Returning
// ErrRouteDeclined makes the dispatcher fall through to later rules as if
// this rule had not matched.
type Handler interface {
	Handle(req *Request) (*Response, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(req *Request) (*Response, error)

// Handle calls fn(req).
func (fn HandlerFunc) Handle(req *Request) (*Response, error) {
	return fn(req)
}

// ErrRouteDeclined signals that a matched rule declines the request and
// dispatch must continue with later rules and the default handler.
var ErrRouteDeclined = errors.New("route declined")

// redirectHandler always answers 302 with a fixed Location.
type redirectHandler struct {
	url string
}

func (h *redirectHandler) Handle(req *Request) (*Response, error) {
	resp := NewResponse(http.StatusFound)
	resp.SetHeader("Location", h.url)
	return resp, nil
}

// fileHandler serves the contents of one local file with an inferred
// content type. A missing or unreadable file declines the route.
type fileHandler struct {
	localPath string
}

func (h *fileHandler) Handle(req *Request) (*Response, error) {
	return serveLocalFile(h.localPath)
}

// directoryHandler resolves the captured sub-path against a local root
// directory. Resolutions escaping the root decline the route instead of
// leaking files outside it.
type directoryHandler struct {
	root string
}

func newDirectoryHandler(localDir string) (*directoryHandler, error) {
	root, err := filepath.Abs(localDir)
	if err != nil {
		return nil, err
	}
	return &directoryHandler{root: root}, nil
}

func (h *directoryHandler) Handle(req *Request) (*Response, error) {
	params := req.Params()
	sub := ""
	if len(params) > 0 {
		sub = params[len(params)-1]
	}

	resolved, err := filepath.Abs(filepath.Join(h.root, filepath.FromSlash(sub)))
	if err != nil {
		return nil, ErrRouteDeclined
	}
	if resolved != h.root && !strings.HasPrefix(resolved, h.root+string(filepath.Separator)) {
		logger.Debug("Rejected path traversal attempt: %s", sub)
		return nil, ErrRouteDeclined
	}

	return serveLocalFile(resolved)
}

func serveLocalFile(path string) (*Response, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, ErrRouteDeclined
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrRouteDeclined
	}

	resp := NewResponse(http.StatusOK)
	if ctype := mime.TypeByExtension(filepath.Ext(path)); ctype != "" {
		resp.SetHeader("Content-Type", ctype)
	}
	resp.AppendBody(data)
	return resp, nil
}

// appHandler delegates the full request to another application.
type appHandler struct {
	target *App
}

func (h *appHandler) Handle(req *Request) (*Response, error) {
	return h.target.Handle(req)
}

// mountHandler delegates to another application with the mount prefix
// stripped from the path.
type mountHandler struct {
	target *App
}

func (h *mountHandler) Handle(req *Request) (*Response, error) {
	params := req.Params()
	sub := ""
	if len(params) > 0 {
		sub = params[len(params)-1]
	}
	req.Path = "/" + sub
	req.SetParams(nil)
	return h.target.Handle(req)
}
