// Package enginetest provides in-memory engine doubles for tests.
package enginetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/knife/pkg/engine"
)

// Handle is a fake analysis target that counts Close calls
type Handle struct {
	id       string
	info     engine.Info
	closes   atomic.Int32
	closeErr error
}

// NewHandle creates a fake handle
func NewHandle(id string, info engine.Info) *Handle {
	if info.Repr == "" {
		info.Repr = fmt.Sprintf("<fake %s>", id)
	}
	return &Handle{id: id, info: info}
}

// WithCloseError makes Close return err
func (h *Handle) WithCloseError(err error) *Handle {
	h.closeErr = err
	return h
}

func (h *Handle) ID() string { return h.id }

// Close records the call and returns the configured error
func (h *Handle) Close() error {
	h.closes.Add(1)
	return h.closeErr
}

// Closes returns how many times Close was called
func (h *Handle) Closes() int {
	return int(h.closes.Load())
}

// Engine is a fake engine. Loads create new handles unless LoadFunc is set.
type Engine struct {
	mu         sync.Mutex
	discovered []engine.Discovered
	loaded     []*Handle
	discovers  int

	// LoadDelay blocks Load until it elapses or ctx is done
	LoadDelay time.Duration

	// LoadFunc overrides Load
	LoadFunc func(ctx context.Context, path string, opts engine.LoadOptions) (engine.Handle, error)
}

// NewEngine creates a fake engine
func NewEngine() *Engine {
	return &Engine{}
}

// SetDiscovered replaces the discovery result
func (e *Engine) SetDiscovered(entries ...engine.Discovered) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.discovered = append([]engine.Discovered(nil), entries...)
}

// Loaded returns the handles created by Load
func (e *Engine) Loaded() []*Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Handle(nil), e.loaded...)
}

// Discovers returns how many times Discover ran
func (e *Engine) Discovers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.discovers
}

func (e *Engine) Name() string { return "fake" }

func (e *Engine) Load(ctx context.Context, path string, opts engine.LoadOptions) (engine.Handle, error) {
	if e.LoadDelay > 0 {
		timer := time.NewTimer(e.LoadDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		}
	}
	if e.LoadFunc != nil {
		return e.LoadFunc(ctx, path, opts)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	state := "loaded"
	if opts.UpdateAnalysis {
		state = "analyzed"
	}
	h := NewHandle(fmt.Sprintf("load-%d", len(e.loaded)+1), engine.Info{
		Filename:      path,
		ViewType:      "Raw",
		AnalysisState: state,
		Repr:          path,
	})
	e.loaded = append(e.loaded, h)
	return h, nil
}

func (e *Engine) Discover(ctx context.Context) ([]engine.Discovered, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.discovers++
	return append([]engine.Discovered(nil), e.discovered...), nil
}

func (e *Engine) Describe(h engine.Handle) (engine.Info, error) {
	fh, ok := h.(*Handle)
	if !ok {
		return engine.Info{}, engine.ErrForeignHandle
	}
	return engine.Normalize(fh.info), nil
}

// OperationFunc implements one fake catalog operation
type OperationFunc func(ctx context.Context, h engine.Handle, params map[string]any) (any, error)

// Catalog is a fake operation catalog
type Catalog struct {
	mu  sync.Mutex
	ops map[string]OperationFunc
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{ops: make(map[string]OperationFunc)}
}

// Register adds an operation
func (c *Catalog) Register(name string, fn OperationFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops[name] = fn
}

func (c *Catalog) List() []engine.OperationInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]engine.OperationInfo, 0, len(c.ops))
	for name := range c.ops {
		out = append(out, engine.OperationInfo{Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Catalog) Dispatch(ctx context.Context, h engine.Handle, name string, params map[string]any) (any, error) {
	c.mu.Lock()
	fn, ok := c.ops[name]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownOperation, name)
	}
	return fn(ctx, h, params)
}
