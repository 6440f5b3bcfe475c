package binfile

import (
	"context"
	"testing"

	"github.com/harun/knife/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_List(t *testing.T) {
	c, err := NewCatalog(4)
	require.NoError(t, err)

	ops := c.List()
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Name)
		assert.NotEmpty(t, op.Description)
		assert.NotEmpty(t, op.Params)
	}
	assert.Equal(t, []string{
		"binary.summary",
		"imports.list",
		"sections.list",
		"strings.like",
		"symbols.like",
		"symbols.list",
	}, names)
}

func TestCatalog_Dispatch(t *testing.T) {
	c, err := NewCatalog(4)
	require.NoError(t, err)

	f, err := Open(testExecutable(t, t.TempDir(), "target.bin"))
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()

	t.Run("summary", func(t *testing.T) {
		out, err := c.Dispatch(ctx, f, "binary.summary", nil)
		require.NoError(t, err)
		sum := out.(Summary)
		assert.Equal(t, f.format, sum.Format)
		assert.Equal(t, len(f.sections), sum.Sections)
		assert.Positive(t, sum.Size)
	})

	t.Run("sections with limit", func(t *testing.T) {
		out, err := c.Dispatch(ctx, f, "sections.list", map[string]any{"limit": float64(1)})
		require.NoError(t, err)
		assert.Len(t, out.([]Section), 1)
	})

	t.Run("offset past end", func(t *testing.T) {
		out, err := c.Dispatch(ctx, f, "sections.list", map[string]any{"offset": 1 << 20})
		require.NoError(t, err)
		assert.Empty(t, out.([]Section))
	})

	t.Run("strings like", func(t *testing.T) {
		out, err := c.Dispatch(ctx, f, "strings.like", map[string]any{"pattern": "RUNTIME", "limit": 3})
		require.NoError(t, err)
		found := out.([]StringRef)
		assert.NotEmpty(t, found)
		assert.LessOrEqual(t, len(found), 3)
	})

	t.Run("missing required param", func(t *testing.T) {
		_, err := c.Dispatch(ctx, f, "symbols.like", map[string]any{})
		assert.ErrorIs(t, err, engine.ErrInvalidParams)
	})

	t.Run("unexpected param", func(t *testing.T) {
		_, err := c.Dispatch(ctx, f, "binary.summary", map[string]any{"bogus": true})
		assert.ErrorIs(t, err, engine.ErrInvalidParams)
	})

	t.Run("negative limit", func(t *testing.T) {
		_, err := c.Dispatch(ctx, f, "sections.list", map[string]any{"limit": -1})
		assert.ErrorIs(t, err, engine.ErrInvalidParams)
	})

	t.Run("unknown operation", func(t *testing.T) {
		_, err := c.Dispatch(ctx, f, "nope", nil)
		assert.ErrorIs(t, err, engine.ErrUnknownOperation)
	})

	t.Run("no resource", func(t *testing.T) {
		_, err := c.Dispatch(ctx, nil, "binary.summary", nil)
		assert.ErrorIs(t, err, engine.ErrNoResource)
	})
}

func TestCatalog_ClosedHandle(t *testing.T) {
	c, err := NewCatalog(4)
	require.NoError(t, err)

	f, err := Open(testExecutable(t, t.TempDir(), "target.bin"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = c.Dispatch(context.Background(), f, "binary.summary", nil)
	assert.ErrorIs(t, err, engine.ErrClosed)
}
