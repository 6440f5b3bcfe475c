package engine

import "errors"

var (
	// ErrUnknownOperation is returned when a catalog has no such operation
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrInvalidParams is returned when operation parameters fail validation
	ErrInvalidParams = errors.New("invalid operation parameters")

	// ErrNoResource is returned when an operation needs a resource and none is bound
	ErrNoResource = errors.New("no resource attached")

	// ErrForeignHandle is returned when a handle was produced by another engine
	ErrForeignHandle = errors.New("handle does not belong to this engine")

	// ErrClosed is returned when a handle is used or closed after Close
	ErrClosed = errors.New("handle is closed")

	// ErrUnsupportedFormat is returned when a target cannot be parsed
	ErrUnsupportedFormat = errors.New("unsupported file format")
)
