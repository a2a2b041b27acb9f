package web

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ronin-rb/ronin-web-server/webserver-srv/logger"
)

// Rule is one ordered entry of the dispatch table: a method set, a
// compiled path pattern, condition predicates, and the handler to invoke.
// Rules are written only at setup time and read-only during serving.
type Rule struct {
	methods    map[string]struct{}
	pattern    *regexp.Regexp
	conditions []Condition
	handler    Handler
}

// NewRule compiles a rule from a path pattern. The pattern syntax supports
// ":name" segments capturing one path segment and "*" capturing the rest.
func NewRule(methods []string, path string, handler Handler, conditions ...Condition) (*Rule, error) {
	pattern, err := compilePathPattern(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path pattern %q: %w", path, err)
	}
	rule := &Rule{
		pattern:    pattern,
		conditions: conditions,
		handler:    handler,
	}
	if len(methods) > 0 {
		rule.methods = make(map[string]struct{}, len(methods))
		for _, m := range methods {
			rule.methods[strings.ToUpper(m)] = struct{}{}
		}
	}
	return rule, nil
}

// newRawRule builds a rule from an already-compiled pattern. Used by the
// mount and vhost helpers whose patterns are constructed directly.
func newRawRule(methods []string, pattern *regexp.Regexp, handler Handler, conditions ...Condition) *Rule {
	rule := &Rule{
		pattern:    pattern,
		conditions: conditions,
		handler:    handler,
	}
	if len(methods) > 0 {
		rule.methods = make(map[string]struct{}, len(methods))
		for _, m := range methods {
			rule.methods[strings.ToUpper(m)] = struct{}{}
		}
	}
	return rule
}

// compilePathPattern translates a route path into an anchored regexp.
// ":name" segments become single-segment captures, "*" becomes a greedy
// capture of the remaining path, and everything else matches literally.
func compilePathPattern(path string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteByte('^')

	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if i > 0 {
			sb.WriteByte('/')
		}
		switch {
		case strings.HasPrefix(segment, ":") && len(segment) > 1:
			sb.WriteString(`([^/]+)`)
		case segment == "*":
			sb.WriteString(`(.*)`)
		default:
			sb.WriteString(regexp.QuoteMeta(segment))
		}
	}
	sb.WriteByte('$')

	return regexp.Compile(sb.String())
}

// match reports whether the rule applies to the request. On a match it
// returns the positional path captures.
func (r *Rule) match(req *Request) ([]string, bool) {
	if r.methods != nil {
		if _, ok := r.methods[req.Method]; !ok {
			return nil, false
		}
	}

	m := r.pattern.FindStringSubmatch(req.Path)
	if m == nil {
		return nil, false
	}

	for _, cond := range r.conditions {
		ok, err := cond.Match(req)
		if err != nil {
			logger.Warn("Condition evaluation failed for %s %s: %v", req.Method, req.Path, err)
			return nil, false
		}
		if !ok {
			return nil, false
		}
	}

	return m[1:], true
}
