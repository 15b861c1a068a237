package remote

import "errors"

var (
	// ErrMalformedMessage is returned for a command message that is not
	// JSON or has no command name.
	ErrMalformedMessage = errors.New("remote: malformed command message")

	// ErrBacklogFull is returned when commands arrive faster than the bus
	// drains them.
	ErrBacklogFull = errors.New("remote: command backlog full")
)
