package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/harun/knife/internal/config"
	"github.com/harun/knife/internal/logger"
	"github.com/harun/knife/internal/observability"
	"github.com/harun/knife/internal/tracing"
	"github.com/harun/knife/pkg/engine/binfile"
	"github.com/harun/knife/pkg/gateway"
	"github.com/harun/knife/pkg/sandbox"
	"github.com/harun/knife/pkg/service"
)

// Daemon is the knife server process: the analysis engine, the session
// service and the RPC server in front of it
type Daemon struct {
	config  *config.Config
	logger  *logger.Logger
	version string

	engine   *binfile.Engine
	service  *service.Service
	watchdog *service.Watchdog
	server   *gateway.Server

	lifecycle *LifecycleManager

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status is a snapshot of the daemon state
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	Addr      string
}

// New wires a daemon from cfg. Nothing is opened or bound until Start.
func New(cfg *config.Config, log *logger.Logger, version string) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	d := &Daemon{
		config:  cfg,
		logger:  log,
		version: version,
	}

	d.engine = binfile.New(binfile.Config{
		WatchDir:           cfg.Engine.WatchDir,
		Pinned:             cfg.Engine.Pinned,
		MinStringLength:    cfg.Engine.MinStringLength,
		StabilityThreshold: cfg.StabilityThreshold(),
		Logger:             log.Zerolog(),
	})

	catalog, err := binfile.NewCatalog(cfg.Engine.MinStringLength)
	if err != nil {
		return nil, fmt.Errorf("failed to build operation catalog: %w", err)
	}

	sbCfg := sandbox.DefaultConfig()
	sbCfg.MaxCallStackSize = cfg.Sandbox.MaxCallStackSize
	sb, err := sandbox.NewGojaSandbox(sbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}

	d.service, err = service.New(service.Config{
		Engine:  d.engine,
		Catalog: catalog,
		Sandbox: sb,
		Logger:  log.Zerolog(),
		Version: version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	if cfg.Watchdog.Enabled {
		d.watchdog, err = service.NewWatchdog(d.service, service.WatchdogConfig{
			Schedule:  cfg.Watchdog.Schedule,
			WarnAfter: cfg.WarnAfter(),
		})
		if err != nil {
			return nil, err
		}
	}

	d.server, err = gateway.NewServer(gateway.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.ShutdownTimeout(),
		Service:         d.service,
		Logger:          log.Zerolog(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)
	return d, nil
}

// Start opens the engine and begins serving
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.logger.Component("daemon").With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Str("version", d.version).Msg("Starting knife server")

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	auditPath := filepath.Join(d.config.DataDir, "audit.log")
	if err := observability.InitAuditLogger(auditPath); err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize audit logger, audit events are discarded")
	}

	if d.config.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(d.config.Tracing.ServiceName); err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
		}
	}

	if err := d.engine.Start(); err != nil {
		d.abort()
		return fmt.Errorf("failed to start engine: %w", err)
	}
	logger.Info().
		Str("watch_dir", d.config.Engine.WatchDir).
		Int("pinned", len(d.config.Engine.Pinned)).
		Msg("Engine started")

	if err := d.server.Start(); err != nil {
		_ = d.engine.Close()
		d.abort()
		return fmt.Errorf("failed to start server: %w", err)
	}

	if d.watchdog != nil {
		d.watchdog.Start()
	}

	logger.Info().Str("addr", d.Addr()).Msg("Knife server started")
	return nil
}

// Stop shuts the server down, closes every session and releases the engine
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	logger := d.logger.Component("daemon").With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Stopping knife server")

	if d.watchdog != nil {
		d.watchdog.Stop()
	}

	if err := d.server.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.config.ShutdownTimeout())
	if err := d.service.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to close sessions")
	}
	cancel()

	if err := d.engine.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close engine")
	}

	d.abort()

	logger.Info().Msg("Knife server stopped")
	return nil
}

// abort releases what Start set up before the engine
func (d *Daemon) abort() {
	logger := d.logger.Component("daemon")

	if d.tracingEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}

	if err := observability.GetAuditLogger().Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close audit logger")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.setStopped()
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
		status.Addr = d.Addr()
	}

	return status
}

// Addr returns the bound server address, or "" before Start
func (d *Daemon) Addr() string {
	addr := d.server.Addr()
	if addr == nil {
		return ""
	}
	return addr.String()
}

// Wait blocks until ctx is done or the process receives SIGINT or SIGTERM,
// then stops the daemon
func (d *Daemon) Wait(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log := d.logger.Component("daemon")
	log.Info().Msg("Shutdown requested")

	return d.Stop()
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetService returns the session service
func (d *Daemon) GetService() *service.Service {
	return d.service
}

// GetServer returns the RPC server
func (d *Daemon) GetServer() *gateway.Server {
	return d.server
}
