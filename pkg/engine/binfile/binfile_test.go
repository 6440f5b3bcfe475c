package binfile

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/knife/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testExecutable copies the running test binary into dir
func testExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	self, err := os.Executable()
	require.NoError(t, err)

	src, err := os.Open(self)
	require.NoError(t, err)
	defer src.Close()

	path := filepath.Join(dir, name)
	dst, err := os.Create(path)
	require.NoError(t, err)
	_, err = io.Copy(dst, src)
	require.NoError(t, err)
	require.NoError(t, dst.Close())
	return path
}

func TestOpen(t *testing.T) {
	path := testExecutable(t, t.TempDir(), "target.bin")

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	assert.NotEmpty(t, f.ID())
	assert.Contains(t, []string{FormatELF, FormatPE, FormatMachO}, f.format)
	assert.NotEmpty(t, f.arch)
	assert.NotEmpty(t, f.sections)

	info := f.Info()
	assert.Equal(t, path, info.Filename)
	assert.Equal(t, f.format, info.ViewType)
	assert.Equal(t, StateLoaded, info.AnalysisState)
	assert.Contains(t, info.Repr, path)
	assert.NotEmpty(t, info.StartHex)
}

func TestOpen_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("just text"), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, engine.ErrUnsupportedFormat)

	_, err = Open(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestFile_Close(t *testing.T) {
	f, err := Open(testExecutable(t, t.TempDir(), "target.bin"))
	require.NoError(t, err)

	require.NoError(t, f.Close())
	assert.True(t, f.Closed())
	assert.ErrorIs(t, f.Close(), engine.ErrClosed)
	assert.ErrorIs(t, f.Analyze(context.Background(), 4), engine.ErrClosed)
}

func TestFile_Analyze(t *testing.T) {
	f, err := Open(testExecutable(t, t.TempDir(), "target.bin"))
	require.NoError(t, err)
	defer f.Close()

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, f.Analyze(ctx, 4), context.Canceled)
		assert.Equal(t, StateLoaded, f.Info().AnalysisState)
	})

	t.Run("finds strings", func(t *testing.T) {
		strs, err := f.Strings(context.Background(), 6)
		require.NoError(t, err)
		assert.NotEmpty(t, strs)
		for _, s := range strs[:min(len(strs), 50)] {
			assert.GreaterOrEqual(t, len(s.Value), 6)
		}
		assert.Equal(t, StateAnalyzed, f.Info().AnalysisState)
	})
}

func TestEngine_Load(t *testing.T) {
	path := testExecutable(t, t.TempDir(), "target.bin")
	e := New(DefaultConfig())
	defer e.Close()

	h, err := e.Load(context.Background(), path, engine.LoadOptions{UpdateAnalysis: true})
	require.NoError(t, err)
	defer h.Close()

	info, err := e.Describe(h)
	require.NoError(t, err)
	assert.Equal(t, path, info.Filename)
	assert.Equal(t, StateAnalyzed, info.AnalysisState)

	other, err := e.Load(context.Background(), path, engine.LoadOptions{})
	require.NoError(t, err)
	defer other.Close()
	assert.NotEqual(t, h.ID(), other.ID(), "loads are never shared")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Load(ctx, path, engine.LoadOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_Discover(t *testing.T) {
	dir := t.TempDir()
	pinned := testExecutable(t, dir, "pinned.bin")
	watched := testExecutable(t, dir, "watched.bin")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))

	cfg := DefaultConfig()
	cfg.WatchDir = dir
	cfg.Pinned = []string{pinned}
	cfg.StabilityThreshold = 20 * time.Millisecond
	e := New(cfg)
	require.NoError(t, e.Start())
	defer e.Close()

	entries, err := e.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)

	merged := engine.Dedupe(entries)
	require.Len(t, merged, 2)
	assert.Equal(t, pinned, merged[0].Filename)
	assert.Equal(t, "pinned,watch", merged[0].Source)
	assert.Equal(t, watched, merged[1].Filename)
	assert.Equal(t, "watch", merged[1].Source)

	t.Run("new files are discovered", func(t *testing.T) {
		added := testExecutable(t, dir, "added.bin")
		require.Eventually(t, func() bool {
			entries, _ := e.Discover(context.Background())
			for _, d := range entries {
				if d.Filename == added {
					return true
				}
			}
			return false
		}, 5*time.Second, 20*time.Millisecond)
	})

	t.Run("removed files are closed", func(t *testing.T) {
		var handle *File
		for _, d := range merged {
			if d.Filename == watched {
				handle = d.Handle.(*File)
			}
		}
		require.NotNil(t, handle)

		require.NoError(t, os.Remove(watched))
		require.Eventually(t, handle.Closed, 5*time.Second, 20*time.Millisecond)

		entries, _ := e.Discover(context.Background())
		for _, d := range entries {
			assert.NotEqual(t, watched, d.Filename)
		}
	})
}

func TestEngine_DescribeForeign(t *testing.T) {
	e := New(DefaultConfig())
	_, err := e.Describe(nil)
	assert.ErrorIs(t, err, engine.ErrForeignHandle)
}
