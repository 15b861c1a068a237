package lifecycle

import "errors"

var (
	// ErrMissingComponent is returned by New when a required part is nil.
	ErrMissingComponent = errors.New("lifecycle: missing component")
)
