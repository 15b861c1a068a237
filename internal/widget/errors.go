package widget

import "errors"

var (
	// ErrUnknownType is returned for a widget type with no factory.
	ErrUnknownType = errors.New("widget: unknown type")

	// ErrDuplicateID is returned when an instance id is already registered.
	ErrDuplicateID = errors.New("widget: duplicate id")

	// ErrNotFound is returned for an unknown instance id.
	ErrNotFound = errors.New("widget: not found")

	// ErrRenderFailed is returned when the composite could not be written.
	ErrRenderFailed = errors.New("widget: display refresh failed")

	// ErrPanic wraps a panic recovered from a widget call.
	ErrPanic = errors.New("widget: panic")

	// ErrMissingID is returned by commands that name no widget.
	ErrMissingID = errors.New("widget: widget id is required")
)
