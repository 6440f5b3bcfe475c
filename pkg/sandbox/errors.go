package sandbox

import "errors"

var (
	// ErrInvalidStackSize is returned when the call stack limit is invalid
	ErrInvalidStackSize = errors.New("invalid max call stack size (must be >= 0)")

	// ErrInvalidScriptName is returned when the default script name is empty
	ErrInvalidScriptName = errors.New("script name is required")

	// ErrForeignNamespace is returned when a namespace was created by another sandbox
	ErrForeignNamespace = errors.New("namespace does not belong to this sandbox")

	// ErrCallUnavailable is returned by the call builtin when no dispatcher is wired
	ErrCallUnavailable = errors.New("call is not available in this context")
)

const (
	// InterruptedMarker is the error text reported for cancelled executions
	InterruptedMarker = "interrupted"
)
