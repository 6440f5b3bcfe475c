package inflight

import (
	"context"
	"errors"

	"github.com/harun/knife/internal/observability"
	"github.com/rs/zerolog/log"
)

// Outcome is the structured result of an interrupt attempt
type Outcome struct {
	OK             bool    `json:"ok"`
	Interrupted    bool    `json:"interrupted"`
	Active         bool    `json:"active"`
	ID             uint64  `json:"id,omitempty"`
	Name           string  `json:"name,omitempty"`
	WorkerID       string  `json:"worker_id,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_s,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// Interrupt delivers a cancellation to the active request. Delivery is best
// effort: the tracked operation observes it only at its next cancellation
// check. The caller's worker is taken from ctx; a worker may not interrupt
// its own request.
func (t *Tracker) Interrupt(ctx context.Context) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil {
		observability.RecordInterrupt("idle")
		return Outcome{OK: true, Interrupted: false, Active: false}
	}

	rec := t.active.record
	caller := WorkerFromContext(ctx)
	if caller != "" && caller == rec.WorkerID {
		observability.RecordInterrupt("refused")
		return Outcome{
			OK:          false,
			Interrupted: false,
			Active:      true,
			ID:          rec.ID,
			Name:        rec.Name,
			Error:       ErrSelfInterrupt.Error(),
		}
	}

	interrupted := t.active.ctx.Err() == nil
	if interrupted {
		t.active.cancel(ErrInterrupted)
	}

	elapsed := t.now().Sub(rec.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	log.Debug().
		Uint64("id", rec.ID).
		Str("name", rec.Name).
		Str("worker_id", rec.WorkerID).
		Bool("interrupted", interrupted).
		Msg("Interrupt request")

	out := Outcome{
		OK:             interrupted,
		Interrupted:    interrupted,
		Active:         true,
		ID:             rec.ID,
		Name:           rec.Name,
		WorkerID:       rec.WorkerID,
		ElapsedSeconds: elapsed.Seconds(),
	}
	switch {
	case interrupted:
		observability.RecordInterrupt("interrupted")
	case errors.Is(context.Cause(t.active.ctx), ErrInterrupted):
		out.OK = true
		out.Error = ErrAlreadySent.Error()
		observability.RecordInterrupt("repeated")
	default:
		out.Error = ErrAlreadyFinished.Error()
		observability.RecordInterrupt("missed")
	}
	return out
}
