package service

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// WatchdogConfig controls the long-running request watchdog
type WatchdogConfig struct {
	// Schedule is a cron expression or descriptor such as "@every 30s"
	Schedule string

	// WarnAfter is the elapsed time after which the active request is reported
	WarnAfter time.Duration
}

// ParseSchedule validates a watchdog schedule
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid watchdog schedule: %w", err)
	}
	return sched, nil
}

// Watchdog periodically logs server status and warns about requests that
// have held the engine for too long
type Watchdog struct {
	svc       *Service
	cron      *cron.Cron
	warnAfter time.Duration
	logger    zerolog.Logger
}

// NewWatchdog creates a watchdog for svc
func NewWatchdog(svc *Service, cfg WatchdogConfig) (*Watchdog, error) {
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	w := &Watchdog{
		svc:       svc,
		cron:      cron.New(),
		warnAfter: cfg.WarnAfter,
		logger:    svc.logger.With().Str("component", "watchdog").Logger(),
	}
	w.cron.Schedule(sched, cron.FuncJob(func() { w.Check() }))
	return w, nil
}

// Start begins running checks on the schedule
func (w *Watchdog) Start() {
	w.cron.Start()
	w.logger.Info().Dur("warn_after", w.warnAfter).Msg("Watchdog started")
}

// Stop stops the schedule and waits for a running check to finish
func (w *Watchdog) Stop() {
	<-w.cron.Stop().Done()
	w.logger.Info().Msg("Watchdog stopped")
}

// Check logs the current status once. It reports whether the active
// request exceeded the warning threshold.
func (w *Watchdog) Check() bool {
	rec, active := w.svc.tracker.Snapshot()

	w.logger.Debug().
		Int("sessions", w.svc.registry.Len()).
		Bool("active", active).
		Msg("Server status")

	if !active || w.warnAfter <= 0 || rec.Elapsed < w.warnAfter {
		return false
	}

	w.logger.Warn().
		Uint64("id", rec.ID).
		Str("name", rec.Name).
		Str("worker_id", rec.WorkerID).
		Float64("elapsed_s", rec.ElapsedSeconds()).
		Msg("Long-running request holds the engine")
	return true
}
