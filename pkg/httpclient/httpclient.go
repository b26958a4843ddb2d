// Package httpclient builds the HTTP clients used for probing targets and
// for talking to upstream listing sites.
//
// Probe clients never follow redirects: the body at a redirect destination
// does not describe the probed path. TLS verification is skipped because
// scanning self-signed and staging deployments is a supported use case.
package httpclient

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cmsprobe/cmsprobe/pkg/defaults"
	"github.com/cmsprobe/cmsprobe/pkg/duration"
)

// Config holds HTTP client configuration options.
type Config struct {
	// Timeout is the total request timeout (default: 15s)
	Timeout time.Duration

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool

	// FollowRedirects follows up to 10 redirects. Probe clients leave it off.
	FollowRedirects bool

	// Proxy is an http(s):// or socks5(h):// proxy URL (optional)
	Proxy string

	// UserAgent is set on every request (default: defaults.UserAgent)
	UserAgent string

	// Headers are added to every request
	Headers http.Header

	// Host overrides the Host header, for scanning by IP
	Host string

	// MaxIdleConns is the maximum number of idle connections across all hosts (default: 100)
	MaxIdleConns int

	// MaxConnsPerHost is the maximum connections per host (default: 32)
	MaxConnsPerHost int
}

// DefaultConfig returns the probe client defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:            duration.HTTPProbe,
		InsecureSkipVerify: true,
		UserAgent:          defaults.UserAgent,
		MaxIdleConns:       100,
		MaxConnsPerHost:    32,
	}
}

// ListingConfig returns defaults for upstream listing pages and package
// metadata: longer timeout, redirects followed, certificates verified.
func ListingConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = duration.HTTPListing
	cfg.InsecureSkipVerify = false
	cfg.FollowRedirects = true
	return cfg
}

// New creates a new HTTP client with the given configuration.
func New(cfg Config) (*http.Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = duration.HTTPProbe
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = 32
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}

	dialer := &net.Dialer{
		Timeout:   duration.HTTPDial,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       duration.HTTPIdleConn,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		TLSHandshakeTimeout:   duration.HTTPTLSHandshake,
		DialContext:           dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // scanning self-signed targets
		},
	}

	proxyCfg, err := ParseProxyURL(cfg.Proxy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProxyConfig, err)
	}
	if proxyCfg != nil {
		if proxyCfg.IsSOCKS {
			socks, err := CreateSOCKSDialer(proxyCfg, duration.HTTPDial)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrProxyConfig, err)
			}
			transport.DialContext = socks.DialContext
		} else {
			transport.Proxy = http.ProxyURL(proxyCfg.URL)
		}
	}

	client := &http.Client{
		Transport: &middlewareTransport{
			base:      transport,
			userAgent: cfg.UserAgent,
			headers:   cfg.Headers,
			host:      cfg.Host,
		},
		Timeout: cfg.Timeout,
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client, nil
}

// WithTimeout returns DefaultConfig with the specified timeout.
func WithTimeout(timeout time.Duration) Config {
	cfg := DefaultConfig()
	cfg.Timeout = timeout
	return cfg
}
