package profile

import "errors"

// Sentinel errors for profile lookup and loading.
var (
	// ErrUnknownCMS indicates no shipped profile has the requested name.
	ErrUnknownCMS = errors.New("profile: unknown cms")

	// ErrInvalidProfile indicates an embedded profile failed validation.
	ErrInvalidProfile = errors.New("profile: invalid profile")
)
