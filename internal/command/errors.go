package command

import "errors"

var (
	// ErrBusFull is returned when the inbox has no room and the caller gave up.
	ErrBusFull = errors.New("command: bus full")

	// ErrUnknownCommand is the reply error for unrecognised command names.
	ErrUnknownCommand = errors.New("command: unknown command")

	// ErrInvalidPayload is the reply error for payloads that do not decode.
	ErrInvalidPayload = errors.New("command: invalid payload")
)
