package update

import "errors"

var (
	// ErrNoRepos is returned for a profile without update repositories.
	ErrNoRepos = errors.New("update: profile has no repositories")

	// ErrNoListing is returned when wordlists cannot be refreshed.
	ErrNoListing = errors.New("update: profile has no listing")

	// ErrCheckout wraps a failed tag checkout.
	ErrCheckout = errors.New("update: checkout failed")
)
