package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"
)

const resultName = "__result__"

// interruptSignal is the value passed to Runtime.Interrupt on cancellation
type interruptSignal struct{}

// exitSignal is the value passed to Runtime.Interrupt by the exit builtin
type exitSignal struct {
	code int
}

// GojaSandbox executes JavaScript in embedded goja runtimes. Each namespace
// owns one runtime; callers must serialize runs on the same namespace.
type GojaSandbox struct {
	config Config
}

// NewGojaSandbox creates a new goja-backed sandbox
func NewGojaSandbox(config Config) (*GojaSandbox, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Stdout == nil {
		config.Stdout = io.Discard
	}
	if config.Stderr == nil {
		config.Stderr = io.Discard
	}

	return &GojaSandbox{config: config}, nil
}

// GetConfig returns the sandbox configuration
func (g *GojaSandbox) GetConfig() Config {
	return g.config
}

// gojaNamespace is a namespace backed by the global object of one runtime
type gojaNamespace struct {
	owner *GojaSandbox
	vm    *goja.Runtime
}

// NewNamespace creates an empty namespace with its own runtime
func (g *GojaSandbox) NewNamespace() Namespace {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	if g.config.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(g.config.MaxCallStackSize)
	}
	return &gojaNamespace{owner: g, vm: vm}
}

func (n *gojaNamespace) Set(name string, value any) {
	if err := n.vm.Set(name, value); err != nil {
		log.Warn().Err(err).Str("name", name).Msg("Failed to bind namespace value")
	}
}

func (n *gojaNamespace) Get(name string) (any, bool) {
	v := n.vm.GlobalObject().Get(name)
	if v == nil || goja.IsUndefined(v) {
		return nil, false
	}
	return v.Export(), true
}

func (n *gojaNamespace) Delete(name string) {
	_ = n.vm.GlobalObject().Delete(name)
}

func (n *gojaNamespace) Names() []string {
	names := n.vm.GlobalObject().Keys()
	sort.Strings(names)
	return names
}

// Run compiles and executes req in ns
func (g *GojaSandbox) Run(ctx context.Context, ns Namespace, req Request) (res Result) {
	gns, ok := ns.(*gojaNamespace)
	if !ok || gns.owner != g {
		return Result{OK: false, Error: ErrForeignNamespace.Error()}
	}
	vm := gns.vm

	var stdoutBuf, stderrBuf bytes.Buffer
	var stdout, stderr io.Writer = g.config.Stdout, g.config.Stderr
	if req.CaptureOutput {
		stdout, stderr = &stdoutBuf, &stderrBuf
	}

	if err := clearResult(vm); err != nil {
		return Result{OK: false, Error: err.Error()}
	}

	defer func() {
		res.Stdout = stdoutBuf.String()
		res.Stderr = stderrBuf.String()
		collectResult(vm, &res)
	}()

	g.installBuiltins(ctx, vm, req, stdout, stderr)

	name := req.Name
	if name == "" {
		name = g.config.ScriptName
	}
	prog, err := goja.Compile(name, req.Source, false)
	if err != nil {
		return Result{OK: false, Error: err.Error()}
	}

	if ctx.Err() != nil {
		return Result{OK: false, Error: InterruptedMarker}
	}

	done := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			vm.Interrupt(interruptSignal{})
		case <-done:
		}
	}()

	runErr := g.runProgram(vm, prog)
	close(done)
	<-watcherDone
	vm.ClearInterrupt()

	return classify(runErr)
}

// clearResult removes the previous run's __result__. A var-declared global
// cannot be deleted, so it is reset to undefined instead.
func clearResult(vm *goja.Runtime) error {
	global := vm.GlobalObject()
	if err := global.Delete(resultName); err == nil {
		return nil
	}
	if err := global.Set(resultName, goja.Undefined()); err != nil {
		return fmt.Errorf("cannot clear %s: %w", resultName, err)
	}
	return nil
}

// collectResult copies __result__ into res. A value that cannot be encoded
// as JSON fails the run; the captured output is kept.
func collectResult(vm *goja.Runtime, res *Result) {
	v := vm.GlobalObject().Get(resultName)
	if v == nil || goja.IsUndefined(v) {
		return
	}

	exported := v.Export()
	if _, err := json.Marshal(exported); err != nil {
		if res.OK {
			res.OK = false
			res.Error = fmt.Sprintf("result is not JSON-serializable: %v", err)
		}
		return
	}
	res.Result = exported
}

func (g *GojaSandbox) runProgram(vm *goja.Runtime, prog *goja.Program) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	_, err = vm.RunProgram(prog)
	return err
}

func classify(err error) Result {
	if err == nil {
		return Result{OK: true}
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		switch sig := interrupted.Value().(type) {
		case exitSignal:
			code := sig.code
			res := Result{OK: code == 0, ExitCode: &code}
			if code != 0 {
				res.Error = exitError(code)
			}
			return res
		default:
			return Result{OK: false, Error: InterruptedMarker}
		}
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		return Result{OK: false, Error: exception.String()}
	}

	return Result{OK: false, Error: err.Error()}
}

func (g *GojaSandbox) installBuiltins(ctx context.Context, vm *goja.Runtime, req Request, stdout, stderr io.Writer) {
	writeLine := func(w io.Writer) func(call goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				parts = append(parts, arg.String())
			}
			fmt.Fprintln(w, strings.Join(parts, " "))
			return goja.Undefined()
		}
	}

	argv := req.Argv
	if argv == nil {
		argv = []string{}
	}

	_ = vm.Set("print", writeLine(stdout))
	_ = vm.Set("eprint", writeLine(stderr))
	_ = vm.Set("argv", argv)

	_ = vm.Set("sleep", func(call goja.FunctionCall) goja.Value {
		d := time.Duration(call.Argument(0).ToFloat() * float64(time.Second))
		if d <= 0 {
			return goja.Undefined()
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			vm.Interrupt(interruptSignal{})
		}
		return goja.Undefined()
	})

	_ = vm.Set("exit", func(call goja.FunctionCall) goja.Value {
		code := 0
		if arg := call.Argument(0); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			code = int(arg.ToInteger())
		}
		vm.Interrupt(exitSignal{code: code})
		return goja.Undefined()
	})

	_ = vm.Set("call", func(call goja.FunctionCall) goja.Value {
		if req.Call == nil {
			panic(vm.NewGoError(ErrCallUnavailable))
		}
		op := call.Argument(0).String()
		params := map[string]any{}
		if arg := call.Argument(1); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			if m, ok := arg.Export().(map[string]any); ok {
				params = m
			}
		}
		out, err := req.Call(ctx, op, params)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(out)
	})
}
