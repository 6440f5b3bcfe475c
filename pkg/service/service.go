package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/knife/internal/observability"
	"github.com/harun/knife/internal/tracing"
	"github.com/harun/knife/pkg/engine"
	"github.com/harun/knife/pkg/inflight"
	"github.com/harun/knife/pkg/locks"
	"github.com/harun/knife/pkg/sandbox"
	"github.com/harun/knife/pkg/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Handler serves one RPC method
type Handler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Method is a named RPC method with its parameter schema
type Method struct {
	Name    string
	Schema  []byte
	Handler Handler
}

// Config holds the collaborators of a Service
type Config struct {
	Engine  engine.Engine
	Catalog engine.Catalog
	Sandbox sandbox.Sandbox
	Logger  zerolog.Logger
	Version string
}

// Service owns every piece of process-wide coordination state: the session
// registry, the engine and root locks, the root namespace and the
// active-request tracker.
type Service struct {
	engine  engine.Engine
	catalog engine.Catalog
	sandbox sandbox.Sandbox
	logger  zerolog.Logger
	version string
	started time.Time

	registry   *session.Registry
	tracker    *inflight.Tracker
	engineLock *locks.Lock
	rootLock   *locks.Lock

	rootMu sync.Mutex
	rootNS sandbox.Namespace

	methods map[string]Method
}

// New creates a service and registers its methods
func New(cfg Config) (*Service, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Sandbox == nil {
		return nil, fmt.Errorf("sandbox is required")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	observability.EnsureRegistered()

	s := &Service{
		engine:     cfg.Engine,
		catalog:    cfg.Catalog,
		sandbox:    cfg.Sandbox,
		logger:     cfg.Logger.With().Str("component", "service").Logger(),
		version:    cfg.Version,
		started:    time.Now(),
		registry:   session.NewRegistry(cfg.Sandbox, cfg.Logger),
		tracker:    inflight.NewTracker(),
		engineLock: locks.New("engine"),
		rootLock:   locks.New("root"),
		methods:    make(map[string]Method),
	}
	s.rootNS = s.newRootNamespace()

	if err := s.registerMethods(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) registerMethods() error {
	regs := []error{
		register(s, "session.open", s.sessionOpen),
		register(s, "session.list", s.sessionList),
		register(s, "session.close", s.sessionClose),
		register(s, "session.reset", s.sessionReset),
		register(s, "resource.list", s.resourceList),
		register(s, "resource.attach", s.resourceAttach),
		register(s, "resource.status", s.resourceStatus),
		register(s, "resource.load", s.resourceLoad),
		register(s, "resource.detach", s.resourceDetach),
		register(s, "code.run", s.codeRun),
		register(s, "root.run_code", s.rootRunCode),
		register(s, "root.reset", s.rootReset),
		register(s, "operation.list", s.operationList),
		register(s, "operation.call", s.operationCall),
		register(s, "request.status", s.requestStatus),
		register(s, "request.interrupt", s.requestInterrupt),
		register(s, "server.ping", s.serverPing),
	}
	for _, err := range regs {
		if err != nil {
			return err
		}
	}
	return nil
}

// register reflects the schema of P and wraps fn with validation, tracing,
// logging and metrics
func register[P any](s *Service, name string, fn func(ctx context.Context, p P) (interface{}, error)) error {
	var zero P
	schema, err := reflectSchema(&zero)
	if err != nil {
		return fmt.Errorf("method %s: %w", name, err)
	}

	s.methods[name] = Method{
		Name:   name,
		Schema: schema.raw,
		Handler: func(ctx context.Context, params map[string]interface{}) (result interface{}, err error) {
			start := time.Now()
			ctx = tracing.WithMethod(ctx, name)
			ctx, span := tracing.StartSpan(ctx, name, attribute.String("rpc.method", name))
			defer func() {
				tracing.EndSpan(span, err)
				observability.RecordRequest(name, time.Since(start), err == nil)
				logger := tracing.Logger(ctx, s.logger)
				if err != nil {
					logger.Debug().Err(err).Dur("duration", time.Since(start)).Msg("Request failed")
				} else {
					logger.Debug().Dur("duration", time.Since(start)).Msg("Request completed")
				}
			}()

			var p P
			if err := schema.decode(params, &p); err != nil {
				return nil, err
			}
			result, err = fn(ctx, p)
			return result, classify(err)
		},
	}
	return nil
}

// Methods returns the registered methods sorted by name
func (s *Service) Methods() []Method {
	out := make([]Method, 0, len(s.methods))
	for _, m := range s.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call invokes a method by name
func (s *Service) Call(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
	m, ok := s.methods[method]
	if !ok {
		return nil, &NotFoundError{Message: fmt.Sprintf("method not found: %s", method)}
	}
	return m.Handler(ctx, params)
}

// Shutdown closes every session under the engine lock. Owned resources are
// closed; Borrowed ones are left to the engine.
func (s *Service) Shutdown(ctx context.Context) error {
	_, release, err := s.engineLock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	defer release()

	n := s.registry.CloseAll()
	s.logger.Info().Int("sessions", n).Msg("Sessions closed")
	return nil
}

// Registry returns the session registry
func (s *Service) Registry() *session.Registry {
	return s.registry
}

// Tracker returns the active-request tracker
func (s *Service) Tracker() *inflight.Tracker {
	return s.tracker
}

// EngineLock returns the lock serializing engine access
func (s *Service) EngineLock() *locks.Lock {
	return s.engineLock
}

// lookup finds the named session and tags ctx with it
func (s *Service) lookup(ctx context.Context, name string) (context.Context, *session.Session, error) {
	sess, err := s.registry.Get(name)
	if err != nil {
		return ctx, nil, classify(err)
	}
	return tracing.WithSession(ctx, name), sess, nil
}

// tracked runs fn holding the given locks, in order, as the active request
func (s *Service) tracked(ctx context.Context, name string, held []*locks.Lock, fn func(ctx context.Context) error) error {
	ctx, release, err := locks.AcquireAll(ctx, held...)
	if err != nil {
		return fmt.Errorf("%s: waiting for lock: %w", name, err)
	}
	defer release()

	return s.tracker.Track(ctx, name, fn)
}

func sessionOp(sess *session.Session, op string) string {
	return fmt.Sprintf("session.%s.%s", sess.Name(), op)
}
