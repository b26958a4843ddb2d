package fingerprint

import "errors"

var (
	// ErrNoDatabase indicates neither versions.json nor versions.xml exists
	// for a CMS.
	ErrNoDatabase = errors.New("fingerprint: no database")

	// ErrCorruptDatabase indicates a database file could not be decoded.
	ErrCorruptDatabase = errors.New("fingerprint: corrupt database")
)
