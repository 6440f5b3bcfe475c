package locks

import (
	"context"
	"sync"
	"time"

	"github.com/harun/knife/internal/observability"
)

// Lock is a mutual exclusion primitive whose ownership travels with a
// context.Context. A call chain that already holds the lock may acquire it
// again through the same context without blocking.
//
// The context returned by Acquire must not be handed to goroutines that run
// concurrently with the holder: they would observe the lock as held.
type Lock struct {
	name string
	sem  chan struct{}
}

type holdKey struct {
	lock *Lock
}

// New creates a named lock. The name is used for metrics and logs.
func New(name string) *Lock {
	return &Lock{
		name: name,
		sem:  make(chan struct{}, 1),
	}
}

// Name returns the lock name
func (l *Lock) Name() string {
	return l.name
}

// Held reports whether ctx carries ownership of the lock
func (l *Lock) Held(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	held, _ := ctx.Value(holdKey{lock: l}).(bool)
	return held
}

// Acquire blocks until the lock is held or ctx is done. It returns a context
// carrying ownership and a release function that is safe to call more than
// once. Re-entrant acquisitions return a no-op release.
func (l *Lock) Acquire(ctx context.Context) (context.Context, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if l.Held(ctx) {
		return ctx, func() {}, nil
	}

	start := time.Now()
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx, func() {}, context.Cause(ctx)
	}
	observability.RecordLockWait(l.name, time.Since(start))

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-l.sem
		})
	}
	return context.WithValue(ctx, holdKey{lock: l}, true), release, nil
}

// TryAcquire acquires the lock only if it is immediately available
func (l *Lock) TryAcquire(ctx context.Context) (context.Context, func(), bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if l.Held(ctx) {
		return ctx, func() {}, true
	}

	select {
	case l.sem <- struct{}{}:
	default:
		return ctx, func() {}, false
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-l.sem
		})
	}
	return context.WithValue(ctx, holdKey{lock: l}, true), release, true
}

// AcquireAll acquires the given locks in order, skipping nil entries. On
// failure every lock acquired so far is released.
func AcquireAll(ctx context.Context, locks ...*Lock) (context.Context, func(), error) {
	releases := make([]func(), 0, len(locks))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, l := range locks {
		if l == nil {
			continue
		}
		next, release, err := l.Acquire(ctx)
		if err != nil {
			releaseAll()
			return ctx, func() {}, err
		}
		ctx = next
		releases = append(releases, release)
	}

	return ctx, releaseAll, nil
}
