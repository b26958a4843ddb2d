package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

var supportedProxySchemes = map[string]bool{
	"http":    true,
	"https":   true,
	"socks5":  true,
	"socks5h": true, // DNS resolved on the proxy side
}

// ProxyConfig holds a parsed proxy URL.
type ProxyConfig struct {
	URL      *url.URL
	Scheme   string
	Host     string
	Port     string
	Username string
	Password string
	IsSOCKS  bool
}

// ParseProxyURL validates and parses a proxy URL string.
// Returns nil, nil if proxyURL is empty. A missing scheme defaults to http.
func ParseProxyURL(proxyURL string) (*ProxyConfig, error) {
	if proxyURL == "" {
		return nil, nil
	}
	if !strings.Contains(proxyURL, "://") {
		proxyURL = "http://" + proxyURL
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !supportedProxySchemes[scheme] {
		return nil, fmt.Errorf("unsupported proxy scheme '%s', supported: http, https, socks5, socks5h", scheme)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("proxy URL missing host")
	}

	port := parsed.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "8080"
		case "https":
			port = "8443"
		default:
			port = "1080"
		}
	}

	cfg := &ProxyConfig{
		URL:     parsed,
		Scheme:  scheme,
		Host:    parsed.Hostname(),
		Port:    port,
		IsSOCKS: strings.HasPrefix(scheme, "socks"),
	}
	if parsed.User != nil {
		cfg.Username = parsed.User.Username()
		cfg.Password, _ = parsed.User.Password()
	}
	return cfg, nil
}

// Address returns the proxy address in host:port format.
func (p *ProxyConfig) Address() string {
	if p == nil {
		return ""
	}
	return net.JoinHostPort(p.Host, p.Port)
}

// ContextDialer is an interface for dialers that support context.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TimeoutDialer wraps a proxy.Dialer with a dial timeout. SOCKS dialers
// don't bound connection setup on their own.
type TimeoutDialer struct {
	dialer  proxy.Dialer
	timeout time.Duration
}

// DialContext implements ContextDialer.
func (t *TimeoutDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	if ctxDialer, ok := t.dialer.(proxy.ContextDialer); ok {
		conn, err := ctxDialer.DialContext(ctx, network, address)
		if err != nil {
			return nil, fmt.Errorf("proxy dial: %w", err)
		}
		return conn, nil
	}

	connCh := make(chan net.Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := t.dialer.Dial(network, address)
		if err != nil {
			errCh <- err
			return
		}
		select {
		case connCh <- conn:
		case <-ctx.Done():
			conn.Close()
		}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("proxy dial timeout: %w", ctx.Err())
	case conn := <-connCh:
		return conn, nil
	case err := <-errCh:
		return nil, err
	}
}

// CreateSOCKSDialer creates a SOCKS5 dialer from cfg. For socks5h the
// hostname is passed through so the proxy resolves it.
func CreateSOCKSDialer(cfg *ProxyConfig, timeout time.Duration) (ContextDialer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("proxy config is nil")
	}

	proxyURL := &url.URL{Scheme: "socks5", Host: cfg.Address()}
	if cfg.Username != "" {
		proxyURL.User = url.UserPassword(cfg.Username, cfg.Password)
	}

	dialer, err := proxy.FromURL(proxyURL, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS dialer: %w", err)
	}
	return &TimeoutDialer{dialer: dialer, timeout: timeout}, nil
}
