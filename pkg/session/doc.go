// Package session manages named execution sessions and the analysis
// resource each one has bound.
//
// Invariants:
// - Session names are unique within a registry and never change.
// - A session binds at most one resource at a time.
// - An Owned resource that is replaced or detached is closed exactly once.
// - A Borrowed resource is closed only by an explicit forced detach.
// - Operations on one session are serialized by its re-entrant lock.
//
// Usage:
//
//	reg := session.NewRegistry(sb, logger)
//	sess, _ := reg.Open("s1")
//	sess.BindResource(handle, true)
//	res := sess.RunCode(ctx, engineLock, "__result__ = 40 + 2", session.RunOptions{CaptureOutput: true})
package session
