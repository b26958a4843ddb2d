package enumerate

import "errors"

var (
	// ErrInvalidMethod is returned for an unknown --method value.
	ErrInvalidMethod = errors.New("enumerate: invalid scanning method")

	// ErrNoScanningMethod is returned when the target answers no regular
	// file, or the folder probe gives a status no method explains.
	ErrNoScanningMethod = errors.New("enumerate: could not determine scanning method")
)
