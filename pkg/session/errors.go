package session

import "errors"

var (
	// ErrInvalidName is returned when a session name is empty
	ErrInvalidName = errors.New("session name must be a non-empty string")

	// ErrNotFound is returned when a session does not exist
	ErrNotFound = errors.New("unknown session")
)
