package locks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_Acquire(t *testing.T) {
	t.Run("re-entrant through held context", func(t *testing.T) {
		l := New("test")

		ctx, release, err := l.Acquire(context.Background())
		require.NoError(t, err)
		defer release()
		assert.True(t, l.Held(ctx))

		nested, nestedRelease, err := l.Acquire(ctx)
		require.NoError(t, err)
		assert.True(t, l.Held(nested))
		nestedRelease()

		// nested release must not free the outer hold
		_, _, ok := l.TryAcquire(context.Background())
		assert.False(t, ok)
	})

	t.Run("release is idempotent", func(t *testing.T) {
		l := New("test")

		_, release, err := l.Acquire(context.Background())
		require.NoError(t, err)
		release()
		release()

		_, second, ok := l.TryAcquire(context.Background())
		require.True(t, ok)
		second()
	})

	t.Run("waiting respects cancellation", func(t *testing.T) {
		l := New("test")
		_, release, err := l.Acquire(context.Background())
		require.NoError(t, err)
		defer release()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, _, err = l.Acquire(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("mutual exclusion across goroutines", func(t *testing.T) {
		l := New("test")
		var inside int32
		var overlaps int32
		var wg sync.WaitGroup

		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, release, err := l.Acquire(context.Background())
				if err != nil {
					return
				}
				defer release()
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.AddInt32(&overlaps, 1)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(0), overlaps)
	})
}

func TestAcquireAll(t *testing.T) {
	t.Run("acquires in order and releases all", func(t *testing.T) {
		a := New("a")
		b := New("b")

		ctx, release, err := AcquireAll(context.Background(), a, b)
		require.NoError(t, err)
		assert.True(t, a.Held(ctx))
		assert.True(t, b.Held(ctx))
		release()

		_, ra, ok := a.TryAcquire(context.Background())
		require.True(t, ok)
		ra()
		_, rb, ok := b.TryAcquire(context.Background())
		require.True(t, ok)
		rb()
	})

	t.Run("releases partial holds on failure", func(t *testing.T) {
		a := New("a")
		b := New("b")

		_, holdB, err := b.Acquire(context.Background())
		require.NoError(t, err)
		defer holdB()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, _, err = AcquireAll(ctx, a, b)
		require.Error(t, err)

		_, ra, ok := a.TryAcquire(context.Background())
		assert.True(t, ok)
		ra()
	})
}
