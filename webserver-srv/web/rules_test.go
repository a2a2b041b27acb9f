package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ruleRequest(method, path string) *Request {
	r := httptest.NewRequest(method, "http://example.com"+path, nil)
	return NewRequest(r)
}

func TestCompilePathPattern(t *testing.T) {
	tests := []struct {
		pattern  string
		path     string
		match    bool
		captures []string
	}{
		{"/users", "/users", true, []string{}},
		{"/users", "/users/extra", false, nil},
		{"/users/:id", "/users/42", true, []string{"42"}},
		{"/users/:id", "/users/42/posts", false, nil},
		{"/users/:id/posts/:post", "/users/42/posts/7", true, []string{"42", "7"}},
		{"/files/*", "/files/a/b/c.txt", true, []string{"a/b/c.txt"}},
		{"/files/*", "/files/", true, []string{""}},
		{"/exact.txt", "/exactxtxt", false, nil},
	}

	for _, tc := range tests {
		t.Run(tc.pattern+" vs "+tc.path, func(t *testing.T) {
			re, err := compilePathPattern(tc.pattern)
			require.NoError(t, err)

			m := re.FindStringSubmatch(tc.path)
			if !tc.match {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, tc.captures, m[1:])
		})
	}
}

func TestRuleMethodSet(t *testing.T) {
	handler := HandlerFunc(func(req *Request) (*Response, error) {
		return NewResponse(http.StatusOK), nil
	})

	rule, err := NewRule([]string{http.MethodGet, http.MethodPost}, "/thing", handler)
	require.NoError(t, err)

	_, ok := rule.match(ruleRequest(http.MethodGet, "/thing"))
	assert.True(t, ok)
	_, ok = rule.match(ruleRequest(http.MethodPost, "/thing"))
	assert.True(t, ok)
	_, ok = rule.match(ruleRequest(http.MethodDelete, "/thing"))
	assert.False(t, ok)
}

func TestRuleConditionFailureDoesNotMatch(t *testing.T) {
	handler := HandlerFunc(func(req *Request) (*Response, error) {
		return NewResponse(http.StatusOK), nil
	})
	failing := ConditionFunc(func(req *Request) (bool, error) {
		return false, assert.AnError
	})

	rule, err := NewRule(nil, "/thing", handler, failing)
	require.NoError(t, err)

	_, ok := rule.match(ruleRequest(http.MethodGet, "/thing"))
	assert.False(t, ok)
}

func TestRuleCapturesPassedPositionally(t *testing.T) {
	handler := HandlerFunc(func(req *Request) (*Response, error) {
		return NewResponse(http.StatusOK), nil
	})

	rule, err := NewRule(nil, "/users/:id/files/*", handler)
	require.NoError(t, err)

	params, ok := rule.match(ruleRequest(http.MethodGet, "/users/42/files/a/b.txt"))
	require.True(t, ok)
	assert.Equal(t, []string{"42", "a/b.txt"}, params)
}
