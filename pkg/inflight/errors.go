package inflight

import "errors"

var (
	// ErrInterrupted is the cancellation cause delivered to an interrupted request
	ErrInterrupted = errors.New("request interrupted")

	// ErrSelfInterrupt is reported when a worker tries to interrupt its own request
	ErrSelfInterrupt = errors.New("cannot interrupt current request thread")

	// ErrAlreadyFinished is reported when the target request already unwound
	ErrAlreadyFinished = errors.New("request already finished")

	// ErrAlreadySent is reported when the active request was interrupted
	// earlier and is still unwinding
	ErrAlreadySent = errors.New("interrupt already sent")
)

// IsInterrupted reports whether err, or the cancellation cause of a context
// that produced it, is an interrupt.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}
