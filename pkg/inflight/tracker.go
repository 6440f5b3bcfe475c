package inflight

import (
	"context"
	"sync"
	"time"

	"github.com/harun/knife/internal/observability"
	"github.com/rs/zerolog/log"
)

// Record describes the active request
type Record struct {
	ID        uint64        `json:"id"`
	Name      string        `json:"name"`
	WorkerID  string        `json:"worker_id"`
	StartedAt time.Time     `json:"-"`
	Elapsed   time.Duration `json:"-"`
}

// ElapsedSeconds returns the elapsed time of a snapshot in seconds
func (r Record) ElapsedSeconds() float64 {
	return r.Elapsed.Seconds()
}

// Token identifies one Begin call
type Token struct {
	id     uint64
	cancel context.CancelCauseFunc
}

// ID returns the record id allocated by Begin
func (t Token) ID() uint64 {
	return t.id
}

type activeEntry struct {
	record Record
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// Tracker holds the single process-wide active request slot
type Tracker struct {
	mu     sync.Mutex
	nextID uint64
	active *activeEntry
	now    func() time.Time
}

// NewTracker creates an idle tracker
func NewTracker() *Tracker {
	observability.EnsureRegistered()
	return &Tracker{now: time.Now}
}

// Begin records a new active request named name, executing on the worker
// carried by ctx. The returned context is cancelled when the request is
// interrupted; it must be used for the remainder of the operation.
func (t *Tracker) Begin(ctx context.Context, name string) (context.Context, Token) {
	if ctx == nil {
		ctx = context.Background()
	}
	reqCtx, cancel := context.WithCancelCause(ctx)

	t.mu.Lock()
	t.nextID++
	id := t.nextID
	if t.active != nil {
		log.Debug().
			Uint64("replaced_id", t.active.record.ID).
			Str("replaced_name", t.active.record.Name).
			Uint64("id", id).
			Msg("Active request replaced")
	}
	t.active = &activeEntry{
		record: Record{
			ID:        id,
			Name:      name,
			WorkerID:  WorkerFromContext(ctx),
			StartedAt: t.now(),
		},
		ctx:    reqCtx,
		cancel: cancel,
	}
	t.mu.Unlock()

	observability.SetActiveRequest(true)
	return reqCtx, Token{id: id, cancel: cancel}
}

// End clears the active record if it still belongs to token. The context
// returned by the matching Begin is released either way.
func (t *Tracker) End(token Token) {
	if token.cancel != nil {
		defer token.cancel(nil)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil || t.active.record.ID != token.id {
		return
	}
	t.active = nil
	observability.SetActiveRequest(false)
}

// Track runs fn as the active request. The record is cleared on every exit
// path, including panics.
func (t *Tracker) Track(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	reqCtx, token := t.Begin(ctx, name)
	defer t.End(token)
	return fn(reqCtx)
}

// Snapshot returns a copy of the active record with its elapsed time
func (t *Tracker) Snapshot() (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil {
		return Record{}, false
	}
	rec := t.active.record
	rec.Elapsed = t.now().Sub(rec.StartedAt)
	if rec.Elapsed < 0 {
		rec.Elapsed = 0
	}
	return rec, true
}
