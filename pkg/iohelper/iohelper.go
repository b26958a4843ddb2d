// Package iohelper reads HTTP response bodies with size limits and releases
// connections for keep-alive reuse.
package iohelper

import "io"

// Body size limits
const (
	// SmallMaxBodySize is for status and error pages (8KB)
	SmallMaxBodySize int64 = 8 * 1024

	// DefaultMaxBodySize is for HTML pages and fingerprinted assets (2MB)
	DefaultMaxBodySize int64 = 2 * 1024 * 1024

	// LargeMaxBodySize is for listing pages and package metadata (16MB)
	LargeMaxBodySize int64 = 16 * 1024 * 1024
)

// ReadBody reads from r with a size limit. A nil reader yields an empty slice.
func ReadBody(r io.Reader, maxSize int64) ([]byte, error) {
	if r == nil {
		return []byte{}, nil
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// ReadBodyDefault reads from r with DefaultMaxBodySize.
func ReadBodyDefault(r io.Reader) ([]byte, error) {
	return ReadBody(r, DefaultMaxBodySize)
}

// DrainAndClose discards up to 64KB of what is left in r and closes it.
// Always returns nil so it can be deferred.
func DrainAndClose(r io.Reader) error {
	if r == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64*1024))
	if rc, ok := r.(io.ReadCloser); ok {
		rc.Close()
	}
	return nil
}
