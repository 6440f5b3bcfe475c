// Package inflight tracks the single engine-bound request currently in
// flight and delivers best-effort interrupts to it.
//
// Invariants:
// - At most one active record exists at a time.
// - A record is cleared only by the End call whose token matches its id.
// - Interrupt never mutates or clears the record; it cancels the
//   record's context and the tracked operation unwinds on its own.
// - A worker cannot interrupt its own active request.
//
// Usage:
//
//	tracker := inflight.NewTracker()
//	err := tracker.Track(ctx, "session.s1.run_code", func(ctx context.Context) error {
//		return run(ctx)
//	})
package inflight
