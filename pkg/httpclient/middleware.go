package httpclient

import "net/http"

// middlewareTransport sets the user agent, extra headers and an optional
// Host override on every outgoing request.
type middlewareTransport struct {
	base      http.RoundTripper
	userAgent string
	headers   http.Header
	host      string
}

// RoundTrip implements http.RoundTripper.
func (m *middlewareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())

	for key, vals := range m.headers {
		r.Header.Del(key)
		for _, v := range vals {
			r.Header.Add(key, v)
		}
	}
	if r.Header.Get("User-Agent") == "" && m.userAgent != "" {
		r.Header.Set("User-Agent", m.userAgent)
	}
	if m.host != "" {
		r.Host = m.host
	}

	return m.base.RoundTrip(r)
}
