package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "<knife>", cfg.ScriptName)
	assert.Equal(t, 0, cfg.MaxCallStackSize)
	assert.NotNil(t, cfg.Stdout)
	assert.NotNil(t, cfg.Stderr)
	require.NoError(t, ValidateConfig(cfg))
}

func TestValidateConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "empty script name",
			mutate:  func(c *Config) { c.ScriptName = "" },
			wantErr: ErrInvalidScriptName,
		},
		{
			name:    "negative stack size",
			mutate:  func(c *Config) { c.MaxCallStackSize = -1 },
			wantErr: ErrInvalidStackSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, ValidateConfig(cfg), tt.wantErr)
		})
	}
}

func newTestSandbox(t *testing.T) *GojaSandbox {
	t.Helper()
	sb, err := NewGojaSandbox(DefaultConfig())
	require.NoError(t, err)
	return sb
}

func TestGojaSandbox_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("assignment has no result", func(t *testing.T) {
		sb := newTestSandbox(t)
		ns := sb.NewNamespace()

		res := sb.Run(ctx, ns, Request{Source: "x = 1 + 1", CaptureOutput: true})
		assert.True(t, res.OK)
		assert.Empty(t, res.Stdout)
		assert.Empty(t, res.Stderr)
		assert.Nil(t, res.Result)
		assert.Nil(t, res.ExitCode)

		x, ok := ns.Get("x")
		require.True(t, ok)
		assert.EqualValues(t, 2, x)
	})

	t.Run("result variable is reported", func(t *testing.T) {
		sb := newTestSandbox(t)
		ns := sb.NewNamespace()

		res := sb.Run(ctx, ns, Request{Source: "__result__ = 40 + 2", CaptureOutput: true})
		assert.True(t, res.OK)
		assert.EqualValues(t, 42, res.Result)

		next := sb.Run(ctx, ns, Request{Source: "y = 1", CaptureOutput: true})
		assert.Nil(t, next.Result, "result must be cleared between runs")
	})

	t.Run("var declared result is cleared between runs", func(t *testing.T) {
		sb := newTestSandbox(t)
		ns := sb.NewNamespace()

		first := sb.Run(ctx, ns, Request{Source: "var __result__ = 42", CaptureOutput: true})
		assert.True(t, first.OK)
		assert.EqualValues(t, 42, first.Result)

		second := sb.Run(ctx, ns, Request{Source: "x = 1 + 1", CaptureOutput: true})
		assert.True(t, second.OK)
		assert.Nil(t, second.Result)

		third := sb.Run(ctx, ns, Request{Source: "__result__ = 'again'", CaptureOutput: true})
		assert.Equal(t, "again", third.Result)
	})

	t.Run("result that cannot be encoded fails the run", func(t *testing.T) {
		tests := []struct {
			name   string
			source string
		}{
			{"infinity", "print('partial'); __result__ = 1/0"},
			{"nan", "print('partial'); __result__ = NaN"},
			{"function", "print('partial'); __result__ = function() {}"},
			{"cycle", "print('partial'); var o = {}; o.self = o; __result__ = o"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				sb := newTestSandbox(t)
				res := sb.Run(ctx, sb.NewNamespace(), Request{Source: tt.source, CaptureOutput: true})
				assert.False(t, res.OK)
				assert.Nil(t, res.Result)
				assert.Equal(t, "partial\n", res.Stdout)
				assert.Contains(t, res.Error, "result is not JSON-serializable")

				_, err := json.Marshal(res)
				assert.NoError(t, err)
			})
		}
	})

	t.Run("captures output", func(t *testing.T) {
		sb := newTestSandbox(t)
		res := sb.Run(ctx, sb.NewNamespace(), Request{
			Source:        `print("hello", 1); eprint("oops")`,
			CaptureOutput: true,
		})
		assert.True(t, res.OK)
		assert.Equal(t, "hello 1\n", res.Stdout)
		assert.Equal(t, "oops\n", res.Stderr)
	})

	t.Run("uncaptured output goes to writers", func(t *testing.T) {
		var out bytes.Buffer
		cfg := DefaultConfig()
		cfg.Stdout = &out
		sb, err := NewGojaSandbox(cfg)
		require.NoError(t, err)

		res := sb.Run(ctx, sb.NewNamespace(), Request{Source: `print("direct")`})
		assert.True(t, res.OK)
		assert.Empty(t, res.Stdout)
		assert.Equal(t, "direct\n", out.String())
	})

	t.Run("exception is captured", func(t *testing.T) {
		sb := newTestSandbox(t)
		res := sb.Run(ctx, sb.NewNamespace(), Request{
			Name:          "boom.js",
			Source:        `print("before"); throw new Error("boom")`,
			CaptureOutput: true,
		})
		assert.False(t, res.OK)
		assert.Equal(t, "before\n", res.Stdout)
		assert.Contains(t, res.Error, "boom")
		assert.Contains(t, res.Error, "boom.js")
	})

	t.Run("syntax error is captured", func(t *testing.T) {
		sb := newTestSandbox(t)
		res := sb.Run(ctx, sb.NewNamespace(), Request{Source: "x = (", CaptureOutput: true})
		assert.False(t, res.OK)
		assert.NotEmpty(t, res.Error)
	})

	t.Run("exit zero", func(t *testing.T) {
		sb := newTestSandbox(t)
		res := sb.Run(ctx, sb.NewNamespace(), Request{Source: `print("a"); exit(); print("b")`, CaptureOutput: true})
		assert.True(t, res.OK)
		require.NotNil(t, res.ExitCode)
		assert.Equal(t, 0, *res.ExitCode)
		assert.Equal(t, "a\n", res.Stdout)
		assert.Empty(t, res.Error)
	})

	t.Run("exit non-zero", func(t *testing.T) {
		sb := newTestSandbox(t)
		ns := sb.NewNamespace()
		res := sb.Run(ctx, ns, Request{Source: `exit(3)`, CaptureOutput: true})
		assert.False(t, res.OK)
		require.NotNil(t, res.ExitCode)
		assert.Equal(t, 3, *res.ExitCode)
		assert.Equal(t, "exit(3)", res.Error)

		again := sb.Run(ctx, ns, Request{Source: `__result__ = 1`, CaptureOutput: true})
		assert.True(t, again.OK, "exit must not leak into the next run")
	})

	t.Run("argv is exposed", func(t *testing.T) {
		sb := newTestSandbox(t)
		res := sb.Run(ctx, sb.NewNamespace(), Request{
			Source:        `__result__ = argv.length + ":" + argv[1]`,
			Argv:          []string{"a", "b"},
			CaptureOutput: true,
		})
		assert.True(t, res.OK)
		assert.Equal(t, "2:b", res.Result)
	})

	t.Run("call dispatches operations", func(t *testing.T) {
		sb := newTestSandbox(t)
		var gotOp string
		res := sb.Run(ctx, sb.NewNamespace(), Request{
			Source:        `__result__ = call("sections.list", {limit: 2})`,
			CaptureOutput: true,
			Call: func(ctx context.Context, op string, params map[string]any) (any, error) {
				gotOp = op
				return params["limit"], nil
			},
		})
		assert.True(t, res.OK)
		assert.Equal(t, "sections.list", gotOp)
		assert.EqualValues(t, 2, res.Result)
	})

	t.Run("call errors become exceptions", func(t *testing.T) {
		sb := newTestSandbox(t)
		res := sb.Run(ctx, sb.NewNamespace(), Request{
			Source:        `call("missing")`,
			CaptureOutput: true,
			Call: func(ctx context.Context, op string, params map[string]any) (any, error) {
				return nil, errors.New("unknown operation")
			},
		})
		assert.False(t, res.OK)
		assert.Contains(t, res.Error, "unknown operation")
	})

	t.Run("foreign namespace", func(t *testing.T) {
		sb := newTestSandbox(t)
		res := sb.Run(ctx, NewFake().NewNamespace(), Request{Source: "1"})
		assert.False(t, res.OK)
		assert.Equal(t, ErrForeignNamespace.Error(), res.Error)
	})
}

func TestGojaSandbox_Interrupt(t *testing.T) {
	t.Run("sleep observes cancellation", func(t *testing.T) {
		sb := newTestSandbox(t)
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		res := sb.Run(ctx, sb.NewNamespace(), Request{Source: `print("start"); sleep(5); print("end")`, CaptureOutput: true})
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.False(t, res.OK)
		assert.True(t, res.Interrupted())
		assert.Equal(t, "start\n", res.Stdout)
	})

	t.Run("busy loop observes cancellation", func(t *testing.T) {
		sb := newTestSandbox(t)
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		res := sb.Run(ctx, sb.NewNamespace(), Request{Source: `for (;;) {}`, CaptureOutput: true})
		assert.Equal(t, InterruptedMarker, res.Error)
	})

	t.Run("namespace is reusable after interrupt", func(t *testing.T) {
		sb := newTestSandbox(t)
		ns := sb.NewNamespace()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res := sb.Run(ctx, ns, Request{Source: `x = 1`, CaptureOutput: true})
		assert.True(t, res.Interrupted())

		res = sb.Run(context.Background(), ns, Request{Source: `__result__ = 7`, CaptureOutput: true})
		assert.True(t, res.OK)
		assert.EqualValues(t, 7, res.Result)
	})
}

func TestNamespace(t *testing.T) {
	for name, sb := range map[string]Sandbox{
		"goja": newTestSandbox(t),
		"fake": NewFake(),
	} {
		t.Run(name, func(t *testing.T) {
			ns := sb.NewNamespace()
			ns.Set("bv", nil)
			ns.Set("__session__", "s1")

			v, ok := ns.Get("__session__")
			require.True(t, ok)
			assert.Equal(t, "s1", v)
			assert.Contains(t, ns.Names(), "bv")

			ns.Delete("__session__")
			_, ok = ns.Get("__session__")
			assert.False(t, ok)
		})
	}
}

func TestFake(t *testing.T) {
	fake := NewFake()
	fake.Script("answer", func(ctx context.Context, ns Namespace, req Request) Result {
		return Result{OK: true, Result: 42}
	})

	ns := fake.NewNamespace()
	assert.Equal(t, Result{OK: true, Result: 42}, fake.Run(context.Background(), ns, Request{Source: "answer"}))
	assert.Equal(t, Result{OK: true}, fake.Run(context.Background(), ns, Request{Source: "other"}))
	assert.Len(t, fake.Runs(), 2)
}
