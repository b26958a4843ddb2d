package httpclient

import "errors"

// Sentinel errors for HTTP client failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrProxyConfig indicates the proxy URL is malformed or uses an
	// unsupported scheme.
	ErrProxyConfig = errors.New("httpclient: invalid proxy configuration")
)
