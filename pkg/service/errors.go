package service

import (
	"errors"
	"fmt"

	"github.com/harun/knife/pkg/engine"
	"github.com/harun/knife/pkg/session"
)

// JSON-RPC error codes for classified failures
const (
	CodeInvalidParams = -32602
	CodeNotFound      = -32004
	CodeAmbiguous     = -32009
	CodeOutOfRange    = -32010
)

// ValidationError reports malformed or inconsistent parameters
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Code returns the JSON-RPC error code
func (e *ValidationError) Code() int { return CodeInvalidParams }

// NotFoundError reports a missing session, resource or match
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// Code returns the JSON-RPC error code
func (e *NotFoundError) Code() int { return CodeNotFound }

// Is matches any NotFoundError
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// AmbiguousError reports a match that selected more than one resource
type AmbiguousError struct {
	Match   string
	Matches []int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("multiple resources match %q: %v", e.Match, e.Matches)
}

// Code returns the JSON-RPC error code
func (e *AmbiguousError) Code() int { return CodeAmbiguous }

// Data returns the matching indices
func (e *AmbiguousError) Data() interface{} {
	return map[string]interface{}{"matches": e.Matches}
}

// OutOfRangeError reports an index outside the cached listing. It is a kind
// of NotFoundError.
type OutOfRangeError struct {
	Index  int
	Length int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("index out of range: %d", e.Index)
}

// Code returns the JSON-RPC error code
func (e *OutOfRangeError) Code() int { return CodeOutOfRange }

// Data returns the listing length
func (e *OutOfRangeError) Data() interface{} {
	return map[string]interface{}{"index": e.Index, "length": e.Length}
}

// Is makes errors.Is(err, &NotFoundError{}) match
func (e *OutOfRangeError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// IsNotFound reports whether err is a NotFoundError or a refinement of one
func IsNotFound(err error) bool {
	return errors.Is(err, &NotFoundError{})
}

// classify converts package sentinel errors into typed RPC errors
func classify(err error) error {
	if err == nil {
		return nil
	}

	var (
		validation *ValidationError
		notFound   *NotFoundError
		ambiguous  *AmbiguousError
		outOfRange *OutOfRangeError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &notFound),
		errors.As(err, &ambiguous), errors.As(err, &outOfRange):
		return err
	case errors.Is(err, session.ErrInvalidName):
		return &ValidationError{Message: err.Error()}
	case errors.Is(err, session.ErrNotFound):
		return &NotFoundError{Message: err.Error()}
	case errors.Is(err, engine.ErrInvalidParams):
		return &ValidationError{Message: err.Error()}
	case errors.Is(err, engine.ErrUnknownOperation):
		return &NotFoundError{Message: err.Error()}
	}
	return err
}
