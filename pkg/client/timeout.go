package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/knife/pkg/inflight"
	"github.com/rs/zerolog/log"
)

// DefaultInterruptTimeout bounds the out-of-band interrupt attempt
const DefaultInterruptTimeout = 2 * time.Second

// TimeoutError reports a call abandoned by the client after its timeout.
// It matches context.DeadlineExceeded with errors.Is.
type TimeoutError struct {
	Timeout time.Duration

	// Outcome is the interrupt result when the interrupt call succeeded
	Outcome *inflight.Outcome

	// InterruptErr is set when the interrupt could not be delivered
	InterruptErr error
}

func (e *TimeoutError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "request timed out after %gs", e.Timeout.Seconds())

	switch {
	case e.InterruptErr != nil:
		fmt.Fprintf(&b, "; interrupt attempt failed: %v", e.InterruptErr)
	case e.Outcome != nil && e.Outcome.Interrupted:
		fmt.Fprintf(&b, "; interrupt sent to active request (%s) at %.2fs", e.Outcome.Name, e.Outcome.ElapsedSeconds)
	case e.Outcome != nil && e.Outcome.Active:
		fmt.Fprintf(&b, "; interrupt already sent to active request (%s) at %.2fs", e.Outcome.Name, e.Outcome.ElapsedSeconds)
	default:
		b.WriteString("; no active request to interrupt")
	}
	return b.String()
}

// Unwrap returns context.DeadlineExceeded
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// Coordinator bounds calls with a timeout and, when one expires, asks the
// server to interrupt whatever request is active over a second connection.
// It never retries.
type Coordinator struct {
	endpoint         string
	timeout          time.Duration
	interruptTimeout time.Duration
}

// NewCoordinator creates a coordinator for the server at endpoint. A zero
// timeout disables the deadline.
func NewCoordinator(endpoint string, timeout time.Duration) *Coordinator {
	return &Coordinator{
		endpoint:         endpoint,
		timeout:          timeout,
		interruptTimeout: DefaultInterruptTimeout,
	}
}

// Timeout returns the configured timeout
func (co *Coordinator) Timeout() time.Duration {
	return co.timeout
}

// Do runs fn with the timeout applied to its context. If fn fails because
// the timeout expired, Do interrupts the active request and returns a
// *TimeoutError. Other errors, including cancellation of ctx itself, are
// returned unchanged.
func (co *Coordinator) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if co.timeout <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, co.timeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || !errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return err
	}

	terr := &TimeoutError{Timeout: co.timeout}
	outcome, ierr := co.interrupt(ctx)
	switch {
	case ierr != nil:
		terr.InterruptErr = ierr
	case !outcome.OK && outcome.Error != "":
		terr.InterruptErr = errors.New(outcome.Error)
	default:
		terr.Outcome = &outcome
	}

	log.Debug().
		Dur("timeout", co.timeout).
		AnErr("interrupt_error", terr.InterruptErr).
		Msg("Request timed out")
	return terr
}

// interrupt dials a fresh connection and calls request.interrupt on it. The
// connection that timed out is still waiting on the server and cannot carry
// the call.
func (co *Coordinator) interrupt(ctx context.Context) (inflight.Outcome, error) {
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), co.interruptTimeout)
	defer cancel()

	c, err := Dial(ictx, co.endpoint)
	if err != nil {
		return inflight.Outcome{}, err
	}
	defer c.Close()

	return c.Interrupt(ictx)
}
