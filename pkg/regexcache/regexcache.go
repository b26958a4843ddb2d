// Package regexcache memoizes compiled regular expressions. Profile hint
// patterns and tag filters are compiled once per process no matter how many
// targets are scanned.
package regexcache

import (
	"fmt"
	"regexp"
	"sync"
)

var cache sync.Map

// Get returns the compiled form of pattern, compiling it on first use.
func Get(pattern string) (*regexp.Regexp, error) {
	if cached, ok := cache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regexcache: compile %q: %w", pattern, err)
	}

	actual, _ := cache.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}

// Submatch returns the first capture group of pattern in s, or the whole
// match when the pattern has no groups.
func Submatch(pattern, s string) (string, bool) {
	re, err := Get(pattern)
	if err != nil {
		return "", false
	}
	m := re.FindStringSubmatch(s)
	switch {
	case m == nil:
		return "", false
	case len(m) > 1:
		return m[1], true
	default:
		return m[0], true
	}
}

// Precompile warms the cache and reports every pattern that fails.
func Precompile(patterns ...string) []error {
	var errs []error
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if _, err := Get(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Size returns the number of cached expressions.
func Size() int {
	n := 0
	cache.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
