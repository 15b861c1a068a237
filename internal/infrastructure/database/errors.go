package database

import "errors"

// Domain-specific errors for database operations.
var (
	// ErrNoPath is returned when the configuration has no database path.
	ErrNoPath = errors.New("database: path is required")

	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.New("database: not found")
)
