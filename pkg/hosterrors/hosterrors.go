// Package hosterrors tracks hosts that keep refusing connections so a scan
// against a dead target stops dispatching probes early.
//
// Usage:
//
//	cache := hosterrors.NewCache(hosterrors.DefaultMaxErrors, duration.HostErrorExpiry)
//	if cache.Check(target) {
//	    return hosterrors.ErrHostSkipped
//	}
//	if hosterrors.IsNetworkError(err) {
//	    cache.MarkError(target)
//	}
package hosterrors

import (
	"errors"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultMaxErrors is the number of consecutive connection failures after
// which a host is skipped.
const DefaultMaxErrors = 10

// ErrHostSkipped is recorded for probes that were not sent because the host
// exceeded the error threshold.
var ErrHostSkipped = errors.New("hosterrors: host skipped after repeated connection failures")

type hostState struct {
	count    int
	markedAt time.Time
}

// Cache stores per-host consecutive connection failure counts.
type Cache struct {
	mu        sync.Mutex
	hosts     map[string]*hostState
	maxErrors int
	expiry    time.Duration
	now       func() time.Time
}

// NewCache creates a cache that trips after maxErrors consecutive failures
// and forgets a tripped host after expiry.
func NewCache(maxErrors int, expiry time.Duration) *Cache {
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	return &Cache{
		hosts:     make(map[string]*hostState),
		maxErrors: maxErrors,
		expiry:    expiry,
		now:       time.Now,
	}
}

// MarkError records a failure. Returns true once the host is tripped.
func (c *Cache) MarkError(target string) bool {
	host := normalizeHost(target)
	if host == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.hosts[host]
	if !ok {
		state = &hostState{}
		c.hosts[host] = state
	}
	state.count++
	if state.count >= c.maxErrors {
		if state.markedAt.IsZero() {
			state.markedAt = c.now()
		}
		return true
	}
	return false
}

// MarkSuccess resets the consecutive failure count of a host that has not
// tripped yet.
func (c *Cache) MarkSuccess(target string) {
	host := normalizeHost(target)
	c.mu.Lock()
	defer c.mu.Unlock()
	if state, ok := c.hosts[host]; ok && state.count < c.maxErrors {
		delete(c.hosts, host)
	}
}

// Check returns true if the host should be skipped.
func (c *Cache) Check(target string) bool {
	host := normalizeHost(target)
	if host == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.hosts[host]
	if !ok || state.count < c.maxErrors {
		return false
	}
	if c.expiry > 0 && c.now().Sub(state.markedAt) > c.expiry {
		delete(c.hosts, host)
		return false
	}
	return true
}

// IsNetworkError reports whether err is a connection-level failure (DNS,
// dial, refused). Timeouts on an established connection do not count.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" && !opErr.Timeout()
	}
	return false
}

func normalizeHost(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	if strings.Contains(input, "://") {
		if u, err := url.Parse(input); err == nil && u.Host != "" {
			return strings.ToLower(u.Host)
		}
	}
	host, _, _ := strings.Cut(input, "/")
	return strings.ToLower(host)
}
