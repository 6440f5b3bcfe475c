package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Config defines sandbox configuration
type Config struct {
	// ScriptName is the source name used in stack traces
	ScriptName string `json:"script_name"`

	// MaxCallStackSize limits script recursion depth (0 = interpreter default)
	MaxCallStackSize int `json:"max_call_stack_size"`

	// Stdout receives script output when capture is disabled
	Stdout io.Writer `json:"-"`

	// Stderr receives script error output when capture is disabled
	Stderr io.Writer `json:"-"`
}

// Namespace is the persistent global scope scripts execute in
type Namespace interface {
	// Set binds name to value
	Set(name string, value any)

	// Get returns the exported value bound to name
	Get(name string) (any, bool)

	// Delete removes name
	Delete(name string)

	// Names returns the bound names
	Names() []string
}

// CallFunc dispatches a named operation on behalf of a running script
type CallFunc func(ctx context.Context, op string, params map[string]any) (any, error)

// Request describes one execution
type Request struct {
	// Name is the source name used in stack traces
	Name string

	// Source is the script text
	Source string

	// Argv is exposed to the script as the argv array
	Argv []string

	// CaptureOutput collects print/eprint output into the result instead of
	// writing to the configured writers
	CaptureOutput bool

	// Call backs the call builtin
	Call CallFunc
}

// Result is the outcome of an execution. Failures, exits and cancellation
// are reported here, never returned as errors.
type Result struct {
	OK       bool   `json:"ok"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Result   any    `json:"result,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Interrupted reports whether the execution was cancelled
func (r Result) Interrupted() bool {
	return !r.OK && r.Error == InterruptedMarker
}

// Sandbox defines the compile/execute capability
type Sandbox interface {
	// NewNamespace creates an empty namespace
	NewNamespace() Namespace

	// Run compiles and executes req in ns. Cancelling ctx interrupts the
	// script at its next safe point.
	Run(ctx context.Context, ns Namespace, req Request) Result
}

// DefaultConfig returns a default sandbox configuration
func DefaultConfig() Config {
	return Config{
		ScriptName:       "<knife>",
		MaxCallStackSize: 0,
		Stdout:           os.Stdout,
		Stderr:           os.Stderr,
	}
}

// ValidateConfig validates a sandbox configuration
func ValidateConfig(cfg Config) error {
	if cfg.ScriptName == "" {
		return ErrInvalidScriptName
	}

	if cfg.MaxCallStackSize < 0 {
		return ErrInvalidStackSize
	}

	return nil
}

// exitError formats the error text reported for a non-zero exit
func exitError(code int) string {
	return fmt.Sprintf("exit(%d)", code)
}
