package scan

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Target is one site to scan. Host, when set, overrides the Host header so
// a site can be scanned by IP.
type Target struct {
	URL  string `json:"url"`
	Host string `json:"host,omitempty"`
}

// RepairURL normalizes user input into a scan base: scheme defaulted to
// http, query and fragment dropped, trailing slash guaranteed.
func RepairURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidTarget)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: no host in %q", ErrInvalidTarget, raw)
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawPath = ""
	return u.String(), nil
}

// ParseHostLine splits a url-file line of the form "url [host]". ok is
// false for blank lines and # comments.
func ParseHostLine(line string) (t Target, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return Target{}, false
	}
	t.URL = fields[0]
	if len(fields) > 1 {
		t.Host = fields[1]
	}
	return t, true
}

// ReadTargets parses a url file.
func ReadTargets(r io.Reader) ([]Target, error) {
	var targets []Target
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if t, ok := ParseHostLine(scanner.Text()); ok {
			targets = append(targets, t)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: read targets: %w", err)
	}
	return targets, nil
}
