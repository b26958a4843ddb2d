// Package ratelimit throttles probe dispatch, globally or per host, on top of
// golang.org/x/time/rate token buckets.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Config holds rate limiting configuration
type Config struct {
	// RequestsPerSecond limits requests per second (0 = unlimited)
	RequestsPerSecond int

	// PerHost keeps one bucket per host instead of a shared one
	PerHost bool

	// Burst allows bursting up to N requests (default: RequestsPerSecond/5, min 1)
	Burst int
}

// Limiter hands out dispatch tokens.
type Limiter struct {
	cfg    Config
	global *rate.Limiter

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

// New returns a limiter, or nil when cfg disables limiting. A nil *Limiter
// is valid and never blocks.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(cfg.RequestsPerSecond/5, 1)
	}
	l := &Limiter{cfg: cfg, hosts: make(map[string]*rate.Limiter)}
	if !cfg.PerHost {
		l.global = l.newBucket()
	}
	return l
}

func (l *Limiter) newBucket() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)
}

// Wait blocks until a request to host may be sent or ctx is done.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if l == nil {
		return nil
	}
	if l.global != nil {
		return l.global.Wait(ctx)
	}

	l.mu.Lock()
	bucket, ok := l.hosts[host]
	if !ok {
		bucket = l.newBucket()
		l.hosts[host] = bucket
	}
	l.mu.Unlock()

	return bucket.Wait(ctx)
}
