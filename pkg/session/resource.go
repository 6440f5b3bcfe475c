package session

import (
	"sync"

	"github.com/harun/knife/internal/observability"
	"github.com/harun/knife/pkg/engine"
)

// Ownership records who is responsible for closing a resource
type Ownership int

const (
	// Borrowed resources were discovered; the engine owns them
	Borrowed Ownership = iota
	// Owned resources were loaded by the session, which must close them
	Owned
)

func (o Ownership) String() string {
	if o == Owned {
		return "owned"
	}
	return "borrowed"
}

// Resource wraps a bound engine handle with its ownership tag. The handle is
// closed at most once no matter how many paths try.
type Resource struct {
	handle    engine.Handle
	ownership Ownership

	once     sync.Once
	closeErr error
}

func newResource(h engine.Handle, ownership Ownership) *Resource {
	return &Resource{handle: h, ownership: ownership}
}

// Handle returns the wrapped engine handle
func (r *Resource) Handle() engine.Handle {
	return r.handle
}

// ID returns the handle identity
func (r *Resource) ID() string {
	return r.handle.ID()
}

// Ownership returns the ownership tag
func (r *Resource) Ownership() Ownership {
	return r.ownership
}

// Owned reports whether the session owns the resource
func (r *Resource) Owned() bool {
	return r.ownership == Owned
}

// close releases the handle once; later calls return the first result
func (r *Resource) close() error {
	r.once.Do(func() {
		r.closeErr = r.handle.Close()
		observability.RecordResourceClose(r.closeErr == nil)
	})
	return r.closeErr
}
