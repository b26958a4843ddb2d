package cli

import "errors"

var (
	// ErrInvalidFormat is returned for an unknown -o value.
	ErrInvalidFormat = errors.New("cli: invalid output format")

	// ErrInvalidHeader is returned for a --header without a colon.
	ErrInvalidHeader = errors.New("cli: invalid header")
)
