package session

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/harun/knife/internal/observability"
	"github.com/harun/knife/pkg/sandbox"
	"github.com/rs/zerolog"
)

// Registry maps names to sessions. Its mutex is never held while a session
// lock is taken.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	sandbox  sandbox.Sandbox
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry whose sessions execute in sb
func NewRegistry(sb sandbox.Sandbox, logger zerolog.Logger) *Registry {
	observability.EnsureRegistered()
	return &Registry{
		sessions: make(map[string]*Session),
		sandbox:  sb,
		logger:   logger,
	}
}

// Open returns the named session, creating it on first use
func (r *Registry) Open(name string) (*Session, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[name]; ok {
		return sess, nil
	}

	sess := newSession(name, r.sandbox, r.logger)
	r.sessions[name] = sess
	observability.SetOpenSessions(len(r.sessions))

	r.logger.Info().Str("session", name).Msg("Session opened")
	return sess, nil
}

// Get returns the named session
func (r *Registry) Get(name string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return sess, nil
}

// List returns the session names in sorted order
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of open sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close removes the named session. Its resource is neither detached nor
// closed. Close reports whether the session existed.
func (r *Registry) Close(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[name]; !ok {
		return false
	}
	delete(r.sessions, name)
	observability.SetOpenSessions(len(r.sessions))

	r.logger.Info().Str("session", name).Msg("Session closed")
	return true
}

// CloseAll removes every session, closing the Owned resources they bind.
// Borrowed resources stay open. It returns the number of sessions removed.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	observability.SetOpenSessions(0)
	r.mu.Unlock()

	for name, sess := range sessions {
		out := sess.DetachResource(true, false)
		r.logger.Info().
			Str("session", name).
			Bool("closed_resource", out.Closed).
			Msg("Session closed")
	}
	return len(sessions)
}
