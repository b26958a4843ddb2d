// Package duration provides the time constants shared by the scanner and
// the update pipeline.
//
// Usage:
//
//	ctx, cancel := context.WithTimeout(ctx, duration.ContextShort)
//	client := httpclient.New(httpclient.WithTimeout(duration.HTTPProbe))
package duration

import "time"

// ============================================================================
// HTTP CLIENT TIMEOUTS
// ============================================================================

const (
	// HTTPProbe is the default per-request timeout for scan probes (15s)
	HTTPProbe = 15 * time.Second

	// HTTPDial bounds TCP connection setup (10s)
	HTTPDial = 10 * time.Second

	// HTTPTLSHandshake bounds the TLS handshake (10s)
	HTTPTLSHandshake = 10 * time.Second

	// HTTPIdleConn is how long idle connections stay pooled (90s)
	HTTPIdleConn = 90 * time.Second

	// HTTPListing is for module directory pages and package metadata (60s)
	HTTPListing = 60 * time.Second
)

// ============================================================================
// BACKOFF
// ============================================================================
//
// Package-metadata lookups back off on refused or reset connections.
// ============================================================================

const (
	// BackoffInitial is the first retry delay (2s)
	BackoffInitial = 2 * time.Second

	// BackoffMax caps any single retry delay (120s)
	BackoffMax = 120 * time.Second
)

// ============================================================================
// CONTEXT/OPERATION TIMEOUTS
// ============================================================================

const (
	// ContextShort is for quick operations such as a remote tag listing (30s)
	ContextShort = 30 * time.Second

	// ContextLong is for clones of large upstream repositories (15min)
	ContextLong = 15 * time.Minute

	// ShutdownGrace is how long a second interrupt is awaited before the
	// process keeps draining (30s)
	ShutdownGrace = 30 * time.Second

	// ServerShutdown bounds metrics server and exporter shutdown (5s)
	ServerShutdown = 5 * time.Second
)

// ============================================================================
// CACHE / FRESHNESS
// ============================================================================

const (
	// HostErrorExpiry is how long a failing host stays skipped (5min)
	HostErrorExpiry = 5 * time.Minute

	// WordlistMaxAge is the age after which plugin/theme wordlists are
	// refreshed by update (365 days)
	WordlistMaxAge = 365 * 24 * time.Hour
)

// ============================================================================
// UI
// ============================================================================

const (
	// ProgressThrottle is the minimum interval between progress bar redraws
	ProgressThrottle = 65 * time.Millisecond
)
