// Package locks provides context-owned re-entrant locks.
//
// Invariants:
// - A lock is held by at most one call chain at a time.
// - Ownership is carried by the context returned from Acquire; nested
//   acquisitions through that context do not block.
// - Waiting for a lock respects context cancellation.
//
// Usage:
//
//	engineLock := locks.New("engine")
//	ctx, release, err := engineLock.Acquire(ctx)
//	if err != nil {
//		return err
//	}
//	defer release()
package locks
