package web

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatcherExact(t *testing.T) {
	m := Exact("example.com")
	assert.True(t, m.MatchValue("example.com"))
	assert.False(t, m.MatchValue("sub.example.com"))

	value, ok := m.ExactValue()
	assert.True(t, ok)
	assert.Equal(t, "example.com", value)
}

func TestMatcherPattern(t *testing.T) {
	m := Pattern(regexp.MustCompile(`\.example\.com$`))
	assert.True(t, m.MatchValue("a.example.com"))
	assert.False(t, m.MatchValue("example.org"))

	_, ok := m.ExactValue()
	assert.False(t, ok)
}

func TestMatcherOneOf(t *testing.T) {
	t.Run("single value", func(t *testing.T) {
		m := OneOf("example.com")
		assert.True(t, m.MatchValue("example.com"))
		assert.False(t, m.MatchValue("example.org"))
	})

	t.Run("multiple values use the trie", func(t *testing.T) {
		m := OneOf("example.com", "example.org", "example.net")
		assert.True(t, m.MatchValue("example.org"))
		assert.False(t, m.MatchValue("other.com"))
		// Substring hits must not count as membership
		assert.False(t, m.MatchValue("sub.example.com"))
	})

	t.Run("large set", func(t *testing.T) {
		values := make([]string, 0, 100)
		for i := 0; i < 100; i++ {
			values = append(values, "host-"+strings.Repeat("a", i%7)+".example.com")
		}
		m := OneOf(values...)
		assert.True(t, m.MatchValue(values[42]))
		assert.False(t, m.MatchValue("host-zzz.example.com"))
	})
}

func TestMatcherPredicate(t *testing.T) {
	m := Predicate(func(s string) bool { return strings.HasPrefix(s, "10.") })
	assert.True(t, m.MatchValue("10.0.0.1"))
	assert.False(t, m.MatchValue("192.168.0.1"))
}
