package web

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver struct {
	record *ASNRecord
	err    error
}

func (r *staticResolver) Lookup(ip string) (*ASNRecord, error) {
	return r.record, r.err
}

func conditionRequest(t *testing.T, mutate func(req *Request)) *Request {
	t.Helper()
	r := httptest.NewRequest("GET", "http://example.com/", nil)
	r.RemoteAddr = "203.0.113.7:54321"
	req := NewRequest(r)
	if mutate != nil {
		mutate(req)
	}
	return req
}

func TestClientIPCondition(t *testing.T) {
	req := conditionRequest(t, nil)

	t.Run("exact match", func(t *testing.T) {
		ok, err := ClientIP(Exact("203.0.113.7")).Match(req)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("exact mismatch", func(t *testing.T) {
		ok, err := ClientIP(Exact("198.51.100.1")).Match(req)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("CIDR membership", func(t *testing.T) {
		ok, err := ClientIP(Exact("203.0.113.0/24")).Match(req)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = ClientIP(Exact("198.51.100.0/24")).Match(req)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestASNConditions(t *testing.T) {
	resolver := &staticResolver{record: &ASNRecord{
		Number:      15169,
		CountryCode: "US",
		Name:        "GOOGLE",
	}}

	req := conditionRequest(t, func(req *Request) { req.SetResolver(resolver) })

	ok, err := ASN(Exact("15169")).Match(req)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CountryCode(Exact("US")).Match(req)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ASNName(Exact("GOOGLE")).Match(req)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ASN(Exact("64500")).Match(req)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestASNConditionsWithoutResolver(t *testing.T) {
	req := conditionRequest(t, nil)

	for name, cond := range map[string]Condition{
		"asn":     ASN(Exact("15169")),
		"country": CountryCode(Exact("US")),
		"name":    ASNName(Exact("GOOGLE")),
	} {
		ok, err := cond.Match(req)
		require.NoError(t, err, name)
		assert.False(t, ok, name)
	}
}

func TestASNConditionLookupFailure(t *testing.T) {
	resolver := &staticResolver{err: errors.New("lookup backend down")}
	req := conditionRequest(t, func(req *Request) { req.SetResolver(resolver) })

	// Lookup failures evaluate false, never error
	ok, err := ASN(Exact("15169")).Match(req)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHeaderConditions(t *testing.T) {
	req := conditionRequest(t, func(req *Request) {
		req.Header.Set("Referer", "https://referrer.example/")
		req.Header.Set("User-Agent", "curl/8.0.1")
	})

	ok, err := Host(Exact("example.com")).Match(req)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Referer(Exact("https://referrer.example/")).Match(req)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = UserAgent(Predicate(func(s string) bool { return s == "curl/8.0.1" })).Match(req)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHeaderConditionsAbsent(t *testing.T) {
	req := conditionRequest(t, func(req *Request) {
		req.Header.Del("User-Agent")
	})

	ok, err := Referer(Exact("anything")).Match(req)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = UserAgent(Exact("anything")).Match(req)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParsedUserAgentConditions(t *testing.T) {
	const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	req := conditionRequest(t, func(req *Request) {
		req.Header.Set("User-Agent", chromeUA)
	})

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"browser", Browser(Exact("Chrome")), true},
		{"browser mismatch", Browser(Exact("Firefox")), false},
		{"vendor", BrowserVendor(Exact("Google")), true},
		{"version prefix", BrowserVersion(Predicate(func(s string) bool { return s[0] == '1' })), true},
		{"device", DeviceType(Exact("desktop")), true},
		{"os", OS(Exact("Windows")), true},
		{"os version", OSVersion(Predicate(func(s string) bool { return strings.HasPrefix(s, "10") })), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := tc.cond.Match(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestParsedUserAgentConditionsUnparsable(t *testing.T) {
	req := conditionRequest(t, func(req *Request) {
		req.Header.Del("User-Agent")
	})

	ok, err := Browser(Exact("Chrome")).Match(req)
	require.NoError(t, err)
	assert.False(t, ok)
}
