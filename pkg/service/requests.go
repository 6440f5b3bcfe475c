package service

import (
	"context"
	"time"

	"github.com/harun/knife/internal/observability"
	"github.com/harun/knife/pkg/inflight"
)

// RequestStatus is the result of request.status
type RequestStatus struct {
	Active         bool    `json:"active"`
	ID             uint64  `json:"id,omitempty"`
	Name           string  `json:"name,omitempty"`
	WorkerID       string  `json:"worker_id,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_s,omitempty"`
}

// Ping is the result of server.ping
type Ping struct {
	Version       string  `json:"version"`
	Engine        string  `json:"engine"`
	Sessions      int     `json:"sessions"`
	UptimeSeconds float64 `json:"uptime_s"`
	Active        bool    `json:"active"`
}

func (s *Service) requestStatus(ctx context.Context, _ NoParams) (interface{}, error) {
	rec, ok := s.tracker.Snapshot()
	if !ok {
		return RequestStatus{Active: false}, nil
	}
	return RequestStatus{
		Active:         true,
		ID:             rec.ID,
		Name:           rec.Name,
		WorkerID:       rec.WorkerID,
		ElapsedSeconds: rec.ElapsedSeconds(),
	}, nil
}

// requestInterrupt never takes a lock: it must reach the tracker while
// another request holds every other lock.
func (s *Service) requestInterrupt(ctx context.Context, _ NoParams) (interface{}, error) {
	out := s.tracker.Interrupt(ctx)
	worker := inflight.WorkerFromContext(ctx)
	s.logger.Info().
		Bool("interrupted", out.Interrupted).
		Bool("active", out.Active).
		Str("name", out.Name).
		Str("worker_id", worker).
		Msg("Interrupt requested")

	status := "noop"
	switch {
	case out.Interrupted:
		status = "interrupted"
	case out.Active:
		status = "failure"
	}
	observability.RecordInterruptAudit(ctx, worker, status, map[string]interface{}{"name": out.Name})
	return out, nil
}

func (s *Service) serverPing(ctx context.Context, _ NoParams) (interface{}, error) {
	_, active := s.tracker.Snapshot()
	return Ping{
		Version:       s.version,
		Engine:        s.engine.Name(),
		Sessions:      s.registry.Len(),
		UptimeSeconds: time.Since(s.started).Seconds(),
		Active:        active,
	}, nil
}
