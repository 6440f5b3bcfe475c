package session

import (
	"context"
	"errors"
	"sync"

	"github.com/harun/knife/internal/observability"
	"github.com/harun/knife/pkg/engine"
	"github.com/harun/knife/pkg/inflight"
	"github.com/harun/knife/pkg/locks"
	"github.com/harun/knife/pkg/sandbox"
	"github.com/rs/zerolog"
)

// Namespace names bound by the session
const (
	ResourceVar = "bv"
	SessionVar  = "__session__"
)

// BindOutcome reports what BindResource did to the previous binding
type BindOutcome struct {
	Replaced       bool   `json:"replaced"`
	PreviousOwned  bool   `json:"previous_owned"`
	PreviousClosed bool   `json:"previous_closed"`
	PreviousID     string `json:"previous_id,omitempty"`
}

// DetachOutcome reports what DetachResource did
type DetachOutcome struct {
	HadAttached bool   `json:"had_attached"`
	WasOwned    bool   `json:"was_owned"`
	Closed      bool   `json:"closed"`
	ID          string `json:"id,omitempty"`
}

// RunOptions controls RunCode
type RunOptions struct {
	Name          string
	Argv          []string
	CaptureOutput bool
	Call          sandbox.CallFunc
}

// Session is a named, independent execution context. Callers serialize
// operations with Lock; the internal mutex only protects field access.
type Session struct {
	name    string
	lock    *locks.Lock
	sandbox sandbox.Sandbox
	logger  zerolog.Logger

	mu             sync.Mutex
	resource       *Resource
	ns             sandbox.Namespace
	listing        []engine.Discovered
	listingUnnamed bool
}

func newSession(name string, sb sandbox.Sandbox, logger zerolog.Logger) *Session {
	s := &Session{
		name:    name,
		lock:    locks.New("session:" + name),
		sandbox: sb,
		logger:  logger.With().Str("session", name).Logger(),
	}
	s.ns = s.newNamespace(nil)
	return s
}

func (s *Session) newNamespace(h engine.Handle) sandbox.Namespace {
	ns := s.sandbox.NewNamespace()
	if h != nil {
		ns.Set(ResourceVar, h)
	} else {
		ns.Set(ResourceVar, nil)
	}
	ns.Set(SessionVar, s.name)
	return ns
}

// Name returns the session name
func (s *Session) Name() string {
	return s.name
}

// Lock returns the session lock
func (s *Session) Lock() *locks.Lock {
	return s.lock
}

// Namespace returns the current namespace
func (s *Session) Namespace() sandbox.Namespace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ns
}

// Resource returns the bound resource, or nil
func (s *Session) Resource() *Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resource
}

// Handle returns the bound engine handle, or nil
func (s *Session) Handle() engine.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resource == nil {
		return nil
	}
	return s.resource.handle
}

// BindResource makes h the session's resource. An Owned predecessor is
// closed; a Borrowed one is left alone. Rebinding the same handle replaces
// nothing and keeps it Owned if either binding was Owned.
func (s *Session) BindResource(h engine.Handle, owned bool) BindOutcome {
	ownership := Borrowed
	if owned {
		ownership = Owned
	}

	s.mu.Lock()
	prev := s.resource
	if prev != nil && prev.ID() == h.ID() {
		if owned {
			prev.ownership = Owned
		}
		s.ns.Set(ResourceVar, prev.handle)
		s.mu.Unlock()
		return BindOutcome{}
	}
	s.resource = newResource(h, ownership)
	s.ns.Set(ResourceVar, h)
	s.mu.Unlock()

	observability.RecordResourceBind(owned)
	s.logger.Debug().
		Str("id", h.ID()).
		Str("ownership", ownership.String()).
		Msg("Resource bound")

	if prev == nil {
		return BindOutcome{}
	}

	out := BindOutcome{
		Replaced:      true,
		PreviousOwned: prev.Owned(),
		PreviousID:    prev.ID(),
	}
	if prev.Owned() {
		out.PreviousClosed = s.closeResource(prev)
	}
	return out
}

// DetachResource unbinds the resource. An Owned resource is closed when
// closeIfOwned is set; a Borrowed one only when force is set.
func (s *Session) DetachResource(closeIfOwned, force bool) DetachOutcome {
	s.mu.Lock()
	prev := s.resource
	s.resource = nil
	s.ns.Set(ResourceVar, nil)
	s.mu.Unlock()

	if prev == nil {
		return DetachOutcome{}
	}

	out := DetachOutcome{
		HadAttached: true,
		WasOwned:    prev.Owned(),
		ID:          prev.ID(),
	}
	if (prev.Owned() && closeIfOwned) || force {
		out.Closed = s.closeResource(prev)
	}

	s.logger.Debug().
		Str("id", out.ID).
		Bool("closed", out.Closed).
		Msg("Resource detached")
	return out
}

// closeResource closes r, logging and swallowing failures
func (s *Session) closeResource(r *Resource) bool {
	if err := r.close(); err != nil {
		s.logger.Warn().Err(err).Str("id", r.ID()).Msg("Failed to close resource")
		return false
	}
	return true
}

// Reset rebuilds the namespace from scratch and clears the listing cache.
// Unless keepResource is set the resource is detached first, closing it if
// Owned.
func (s *Session) Reset(keepResource bool) DetachOutcome {
	var out DetachOutcome
	if !keepResource {
		out = s.DetachResource(true, false)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var h engine.Handle
	if s.resource != nil {
		h = s.resource.handle
	}
	s.ns = s.newNamespace(h)
	s.listing = nil
	s.listingUnnamed = false
	return out
}

// Listing returns the cached resource listing and whether it includes
// unnamed entries
func (s *Session) Listing() ([]engine.Discovered, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listing, s.listingUnnamed
}

// SetListing replaces the cached resource listing
func (s *Session) SetListing(entries []engine.Discovered, includeUnnamed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listing = entries
	s.listingUnnamed = includeUnnamed
}

// RunCode executes source in the session namespace under the session lock
// and then engineLock. Both acquisitions are no-ops when ctx already holds
// them. Failures, exits and cancellation are reported in the result.
func (s *Session) RunCode(ctx context.Context, engineLock *locks.Lock, source string, opts RunOptions) sandbox.Result {
	ctx, release, err := locks.AcquireAll(ctx, s.lock, engineLock)
	if err != nil {
		return lockFailure(err)
	}
	defer release()

	s.mu.Lock()
	ns := s.ns
	if s.resource != nil {
		ns.Set(ResourceVar, s.resource.handle)
	} else {
		ns.Set(ResourceVar, nil)
	}
	s.mu.Unlock()

	name := opts.Name
	if name == "" {
		name = "<session:" + s.name + ">"
	}

	res := s.sandbox.Run(ctx, ns, sandbox.Request{
		Name:          name,
		Source:        source,
		Argv:          opts.Argv,
		CaptureOutput: opts.CaptureOutput,
		Call:          opts.Call,
	})
	observability.RecordExecution(outcome(res))
	return res
}

func lockFailure(err error) sandbox.Result {
	if errors.Is(err, inflight.ErrInterrupted) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return sandbox.Result{OK: false, Error: sandbox.InterruptedMarker}
	}
	return sandbox.Result{OK: false, Error: err.Error()}
}

func outcome(res sandbox.Result) string {
	switch {
	case res.Interrupted():
		return "interrupted"
	case res.ExitCode != nil:
		return "exit"
	case res.OK:
		return "ok"
	default:
		return "error"
	}
}
