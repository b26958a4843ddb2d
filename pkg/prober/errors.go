package prober

import "errors"

var (
	// ErrUnexpectedStatus is returned by GetWithBackoff for non-200 answers.
	ErrUnexpectedStatus = errors.New("prober: unexpected status")
)
