package sandbox

import (
	"context"
	"sort"
	"sync"
)

// FakeScript is the behavior of one source text in a Fake sandbox
type FakeScript func(ctx context.Context, ns Namespace, req Request) Result

// Fake is an in-memory sandbox for tests. Sources registered in Scripts run
// the matching function; any other source succeeds with an empty result.
type Fake struct {
	mu      sync.Mutex
	scripts map[string]FakeScript
	runs    []Request
}

// NewFake creates an empty fake sandbox
func NewFake() *Fake {
	return &Fake{scripts: make(map[string]FakeScript)}
}

// Script registers behavior for source
func (f *Fake) Script(source string, fn FakeScript) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[source] = fn
}

// Runs returns the requests executed so far
func (f *Fake) Runs() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.runs))
	copy(out, f.runs)
	return out
}

// NewNamespace creates an empty map-backed namespace
func (f *Fake) NewNamespace() Namespace {
	return &mapNamespace{values: make(map[string]any)}
}

// Run executes the registered script for req.Source
func (f *Fake) Run(ctx context.Context, ns Namespace, req Request) Result {
	f.mu.Lock()
	f.runs = append(f.runs, req)
	fn := f.scripts[req.Source]
	f.mu.Unlock()

	if ctx.Err() != nil {
		return Result{OK: false, Error: InterruptedMarker}
	}
	if fn == nil {
		return Result{OK: true}
	}
	return fn(ctx, ns, req)
}

type mapNamespace struct {
	mu     sync.Mutex
	values map[string]any
}

func (m *mapNamespace) Set(name string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
}

func (m *mapNamespace) Get(name string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	return v, ok
}

func (m *mapNamespace) Delete(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, name)
}

func (m *mapNamespace) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.values))
	for k := range m.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
