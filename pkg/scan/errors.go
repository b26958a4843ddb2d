package scan

import "errors"

var (
	// ErrUnsupported is returned when a requested enumeration is not
	// available for the CMS.
	ErrUnsupported = errors.New("scan: not supported by this cms")

	// ErrNotIdentified is returned when no known CMS matches the target.
	ErrNotIdentified = errors.New("scan: could not identify cms")

	// ErrInvalidTarget is returned for URLs that cannot be scanned.
	ErrInvalidTarget = errors.New("scan: invalid target")

	// ErrInvalidSelector is returned for an unknown enumerate letter.
	ErrInvalidSelector = errors.New("scan: invalid enumerate selector")
)
