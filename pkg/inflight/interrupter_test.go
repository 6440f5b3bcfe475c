package inflight

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterrupt(t *testing.T) {
	t.Run("no active request", func(t *testing.T) {
		tr := NewTracker()
		out := tr.Interrupt(WithWorker(context.Background(), "w-1"))
		assert.Equal(t, Outcome{OK: true, Interrupted: false, Active: false}, out)
	})

	t.Run("refuses self interrupt", func(t *testing.T) {
		tr := NewTracker()
		ctx := WithWorker(context.Background(), "w-1")
		reqCtx, tok := tr.Begin(ctx, "op")
		defer tr.End(tok)

		out := tr.Interrupt(ctx)
		assert.False(t, out.OK)
		assert.False(t, out.Interrupted)
		assert.True(t, out.Active)
		assert.Equal(t, tok.ID(), out.ID)
		assert.Equal(t, "op", out.Name)
		assert.Equal(t, "cannot interrupt current request thread", out.Error)
		assert.NoError(t, reqCtx.Err())

		_, ok := tr.Snapshot()
		assert.True(t, ok)
	})

	t.Run("cancels other worker's request", func(t *testing.T) {
		tr := NewTracker()
		reqCtx, tok := tr.Begin(WithWorker(context.Background(), "w-1"), "session.s.run_code")
		defer tr.End(tok)
		time.Sleep(10 * time.Millisecond)

		out := tr.Interrupt(WithWorker(context.Background(), "w-2"))
		assert.True(t, out.OK)
		assert.True(t, out.Interrupted)
		assert.True(t, out.Active)
		assert.Equal(t, "session.s.run_code", out.Name)
		assert.Equal(t, "w-1", out.WorkerID)
		assert.Greater(t, out.ElapsedSeconds, 0.0)
		assert.Empty(t, out.Error)

		require.Error(t, reqCtx.Err())
		assert.ErrorIs(t, context.Cause(reqCtx), ErrInterrupted)

		rec, ok := tr.Snapshot()
		require.True(t, ok, "interrupt must not clear the record")
		assert.Equal(t, tok.ID(), rec.ID)
	})

	t.Run("second interrupt while unwinding reports already sent", func(t *testing.T) {
		tr := NewTracker()
		_, tok := tr.Begin(WithWorker(context.Background(), "w-1"), "op")
		defer tr.End(tok)

		caller := WithWorker(context.Background(), "w-2")
		first := tr.Interrupt(caller)
		require.True(t, first.Interrupted)

		second := tr.Interrupt(caller)
		assert.True(t, second.OK)
		assert.False(t, second.Interrupted)
		assert.True(t, second.Active)
		assert.Equal(t, "op", second.Name)
		assert.Equal(t, "interrupt already sent", second.Error)
	})

	t.Run("request cancelled by its caller reports already finished", func(t *testing.T) {
		tr := NewTracker()
		parent, cancel := context.WithCancel(WithWorker(context.Background(), "w-1"))
		_, tok := tr.Begin(parent, "op")
		defer tr.End(tok)
		cancel()

		out := tr.Interrupt(WithWorker(context.Background(), "w-2"))
		assert.False(t, out.OK)
		assert.False(t, out.Interrupted)
		assert.True(t, out.Active)
		assert.Equal(t, "request already finished", out.Error)
	})

	t.Run("caller without worker may interrupt", func(t *testing.T) {
		tr := NewTracker()
		_, tok := tr.Begin(WithWorker(context.Background(), "w-1"), "op")
		defer tr.End(tok)

		out := tr.Interrupt(context.Background())
		assert.True(t, out.Interrupted)
	})
}

func TestWorkerContext(t *testing.T) {
	assert.Empty(t, WorkerFromContext(context.Background()))
	id := NewWorkerID()
	assert.NotEmpty(t, id)
	assert.Equal(t, id, WorkerFromContext(WithWorker(context.Background(), id)))
}
