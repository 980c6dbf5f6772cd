package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a key, record or setting does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("already exists")
)
