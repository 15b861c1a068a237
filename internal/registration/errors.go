package registration

import "errors"

var (
	// ErrNotPersisted is returned alongside a usable device id that could
	// not be written to either id file.
	ErrNotPersisted = errors.New("registration: device id not persisted")

	// ErrNotFound is returned when no claim has been stored.
	ErrNotFound = errors.New("registration: claim not found")
)
