package web

import (
	"regexp"

	ahocorasick "github.com/BobuSumisu/aho-corasick"
)

type matcherKind int

const (
	matchExact matcherKind = iota
	matchPattern
	matchOneOf
	matchPredicate
)

// Matcher is a tagged union of the ways a condition can test a string:
// an exact value, a compiled pattern, membership in a value set, or an
// arbitrary predicate function. Large OneOf sets are matched through an
// Aho-Corasick trie with an exact-value verification on each hit.
type Matcher struct {
	kind    matcherKind
	exact   string
	pattern *regexp.Regexp
	values  []string
	trie    *ahocorasick.Trie
	fn      func(string) bool
}

// Exact matches a string equal to value.
func Exact(value string) Matcher {
	return Matcher{kind: matchExact, exact: value}
}

// Pattern matches a string against a compiled regular expression.
func Pattern(re *regexp.Regexp) Matcher {
	return Matcher{kind: matchPattern, pattern: re}
}

// OneOf matches a string equal to any of the given values.
func OneOf(values ...string) Matcher {
	m := Matcher{kind: matchOneOf, values: values}
	if len(values) > 1 {
		m.trie = ahocorasick.NewTrieBuilder().AddStrings(values).Build()
	}
	return m
}

// Predicate matches a string for which fn returns true.
func Predicate(fn func(string) bool) Matcher {
	return Matcher{kind: matchPredicate, fn: fn}
}

// MatchValue evaluates the matcher against a string.
func (m Matcher) MatchValue(s string) bool {
	switch m.kind {
	case matchExact:
		return s == m.exact
	case matchPattern:
		return m.pattern != nil && m.pattern.MatchString(s)
	case matchOneOf:
		if m.trie != nil {
			for _, hit := range m.trie.MatchString(s) {
				if m.values[hit.Pattern()] == s {
					return true
				}
			}
			return false
		}
		for _, v := range m.values {
			if v == s {
				return true
			}
		}
		return false
	case matchPredicate:
		return m.fn != nil && m.fn(s)
	}
	return false
}

// ExactValue returns the literal value and true when the matcher is an
// exact-value matcher. Conditions that special-case literals (CIDR
// notation in client-IP matching) use this to inspect the value.
func (m Matcher) ExactValue() (string, bool) {
	if m.kind == matchExact {
		return m.exact, true
	}
	return "", false
}
