package display

import "errors"

// Domain-specific errors for display operations.
var (
	// ErrClosed is returned for operations after Close.
	ErrClosed = errors.New("display: arbiter closed")

	// ErrNilImage is returned when RenderImage is given no image.
	ErrNilImage = errors.New("display: nil image")

	// ErrDriverPanic wraps a panic recovered from a driver call.
	ErrDriverPanic = errors.New("display: driver panic")

	// ErrCommandFailed is returned when the vendor helper exits non-zero.
	ErrCommandFailed = errors.New("display: helper command failed")

	// ErrUnknownDriver is returned for an unrecognised driver name.
	ErrUnknownDriver = errors.New("display: unknown driver")
)
