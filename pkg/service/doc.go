// Package service is the remote façade over sessions, the engine and the
// active-request tracker. Every exported RPC method takes and returns plain
// JSON data.
//
// Lock order, outermost first:
//
//	session lock -> root lock -> engine lock -> tracker Begin
//
// A method never takes a lock out of this order. Locks are re-entrant through
// the request context, so script builtins that call back into the engine run
// without deadlocking on locks their own request already holds.
//
// Parameters are validated against schemas reflected from the parameter
// structs before any lock is taken.
package service
