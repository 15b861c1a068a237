package process

import "errors"

var (
	// ErrAlreadyRunning is returned by Start on a daemon that is running.
	ErrAlreadyRunning = errors.New("process: already running")

	// ErrCommandFailed wraps a one-shot command that could not run or
	// exited non-zero.
	ErrCommandFailed = errors.New("process: command failed")
)
