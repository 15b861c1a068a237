package cloud

import "errors"

var (
	// ErrDisabled is returned when no backend URL or API key is configured.
	ErrDisabled = errors.New("cloud: disabled")

	// ErrUnexpectedStatus is returned for any non-200 response.
	ErrUnexpectedStatus = errors.New("cloud: unexpected status")

	// ErrMalformedResponse is returned when a response body does not decode.
	ErrMalformedResponse = errors.New("cloud: malformed response")

	// ErrNotRegistered is returned when the backend does not know the device.
	ErrNotRegistered = errors.New("cloud: device not registered")

	// ErrPartiallyApplied is wrapped by an Applier that applied the valid
	// parts of a configuration and rejected the rest. The document still
	// counts as applied.
	ErrPartiallyApplied = errors.New("cloud: config partially applied")

	// ErrApplyFailed wraps an Applier error that left the configuration
	// unapplied.
	ErrApplyFailed = errors.New("cloud: config apply failed")
)
