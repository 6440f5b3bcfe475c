// Package binfile is an analysis engine over executable files (ELF, PE and
// Mach-O). Targets opened outside any session come from a pinned list and a
// watched directory; they are shared and owned by the engine.
package binfile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/harun/knife/pkg/engine"
	"github.com/rs/zerolog"
)

// Discovery sources
const (
	SourcePinned = "pinned"
	SourceWatch  = "watch"
)

// Config holds engine configuration
type Config struct {
	// WatchDir is scanned and watched for targets ("" disables watching)
	WatchDir string

	// Pinned targets are opened at start and stay discoverable
	Pinned []string

	// MinStringLength is the default minimum length for string analysis
	MinStringLength int

	// StabilityThreshold debounces directory events
	StabilityThreshold time.Duration

	Logger zerolog.Logger
}

// DefaultConfig returns a default engine configuration
func DefaultConfig() Config {
	return Config{
		MinStringLength:    4,
		StabilityThreshold: 200 * time.Millisecond,
		Logger:             zerolog.Nop(),
	}
}

// Engine implements engine.Engine over executable files
type Engine struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	shared  map[string]*File
	watched map[string]bool
	watcher *DirWatcher
}

// New creates an engine. Call Start to open pinned targets and begin watching.
func New(cfg Config) *Engine {
	if cfg.MinStringLength <= 0 {
		cfg.MinStringLength = 4
	}
	return &Engine{
		cfg:     cfg,
		logger:  cfg.Logger.With().Str("component", "binfile").Logger(),
		shared:  make(map[string]*File),
		watched: make(map[string]bool),
	}
}

// Name identifies the engine
func (e *Engine) Name() string {
	return "binfile"
}

// Start opens pinned targets and starts the directory watcher
func (e *Engine) Start() error {
	for _, path := range e.cfg.Pinned {
		if _, err := e.share(path); err != nil {
			e.logger.Warn().Err(err).Str("path", path).Msg("Failed to open pinned target")
		}
	}

	if e.cfg.WatchDir == "" {
		return nil
	}

	root, err := filepath.Abs(e.cfg.WatchDir)
	if err != nil {
		return fmt.Errorf("invalid watch dir: %w", err)
	}
	w, err := NewDirWatcher(DirWatcherConfig{
		Root:               root,
		StabilityThreshold: e.cfg.StabilityThreshold,
		OnAdded:            e.watchAdded,
		OnChanged:          e.watchChanged,
		OnRemoved:          e.watchRemoved,
		Logger:             e.logger,
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}

	e.mu.Lock()
	e.watcher = w
	e.mu.Unlock()
	return nil
}

// Close stops watching and closes every shared target
func (e *Engine) Close() error {
	e.mu.Lock()
	w := e.watcher
	e.watcher = nil
	shared := e.shared
	e.shared = make(map[string]*File)
	e.watched = make(map[string]bool)
	e.mu.Unlock()

	var errs []error
	if w != nil {
		if err := w.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, f := range shared {
		if err := f.Close(); err != nil && !errors.Is(err, engine.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load opens path as a new, unshared target owned by the caller
func (e *Engine) Load(ctx context.Context, path string, opts engine.LoadOptions) (engine.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}

	f, err := Open(path)
	if err != nil {
		return nil, err
	}

	if opts.UpdateAnalysis {
		if err := f.Analyze(ctx, e.minStringLength(opts.Options)); err != nil {
			f.Close()
			return nil, fmt.Errorf("analysis failed: %w", err)
		}
	}

	e.logger.Debug().
		Str("path", path).
		Str("format", f.format).
		Str("id", f.id).
		Msg("Target loaded")

	return f, nil
}

func (e *Engine) minStringLength(options map[string]any) int {
	if v, ok := options["min_string_length"]; ok {
		switch n := v.(type) {
		case float64:
			if n > 0 {
				return int(n)
			}
		case int:
			if n > 0 {
				return n
			}
		case int64:
			if n > 0 {
				return int(n)
			}
		}
	}
	return e.cfg.MinStringLength
}

// Discover lists shared targets, once per source that knows them
func (e *Engine) Discover(ctx context.Context) ([]engine.Discovered, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []engine.Discovered
	for _, path := range e.cfg.Pinned {
		if f, ok := e.shared[e.key(path)]; ok {
			out = append(out, discovered(f, SourcePinned))
		}
	}

	watched := make([]string, 0, len(e.watched))
	for key := range e.watched {
		watched = append(watched, key)
	}
	sort.Strings(watched)
	for _, key := range watched {
		if f, ok := e.shared[key]; ok {
			out = append(out, discovered(f, SourceWatch))
		}
	}

	return out, nil
}

func discovered(f *File, source string) engine.Discovered {
	return engine.Discovered{Handle: f, Filename: f.path, Repr: f.path, Source: source}
}

// Describe returns the full description of h
func (e *Engine) Describe(h engine.Handle) (engine.Info, error) {
	f, ok := h.(*File)
	if !ok {
		return engine.Info{}, engine.ErrForeignHandle
	}
	return f.Info(), nil
}

func (e *Engine) key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// share returns the shared target for path, opening it if needed
func (e *Engine) share(path string) (*File, error) {
	key := e.key(path)

	e.mu.Lock()
	if f, ok := e.shared[key]; ok {
		e.mu.Unlock()
		return f, nil
	}
	e.mu.Unlock()

	f, err := Open(key)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.shared[key]; ok {
		f.Close()
		return existing, nil
	}
	e.shared[key] = f
	return f, nil
}

// unshare forgets and closes the shared target for key
func (e *Engine) unshare(key string) {
	e.mu.Lock()
	f, ok := e.shared[key]
	delete(e.shared, key)
	delete(e.watched, key)
	e.mu.Unlock()

	if ok {
		if err := f.Close(); err != nil && !errors.Is(err, engine.ErrClosed) {
			e.logger.Warn().Err(err).Str("path", key).Msg("Failed to close shared target")
		}
	}
}

func (e *Engine) pinned(key string) bool {
	for _, p := range e.cfg.Pinned {
		if e.key(p) == key {
			return true
		}
	}
	return false
}

func (e *Engine) watchAdded(path string) error {
	if _, err := e.share(path); err != nil {
		return err
	}
	key := e.key(path)

	e.mu.Lock()
	e.watched[key] = true
	e.mu.Unlock()

	e.logger.Info().Str("path", key).Msg("Target discovered")
	return nil
}

func (e *Engine) watchChanged(path string) error {
	key := e.key(path)

	e.mu.Lock()
	_, known := e.watched[key]
	e.mu.Unlock()

	if known && !e.pinned(key) {
		e.unshare(key)
	}
	return e.watchAdded(path)
}

func (e *Engine) watchRemoved(path string) error {
	key := e.key(path)
	if e.pinned(key) {
		e.mu.Lock()
		delete(e.watched, key)
		e.mu.Unlock()
		return nil
	}
	e.unshare(key)
	e.logger.Info().Str("path", key).Msg("Target removed")
	return nil
}
