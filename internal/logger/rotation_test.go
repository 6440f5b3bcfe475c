package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRotatingWriter(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "subdir", "test.log")

	rw, err := NewRotatingWriter(logFile, 10, 7, false)
	require.NoError(t, err)
	defer rw.Close()

	assert.FileExists(t, logFile)
}

func TestRotatingWriterWrite(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	rw, err := NewRotatingWriter(logFile, 1, 7, false)
	require.NoError(t, err)

	data := []byte("test log message\n")
	n, err := rw.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	require.NoError(t, rw.Close())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(content))

	_, err = rw.Write(data)
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestRotatingWriterRotation(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "compressed"}[compress], func(t *testing.T) {
			dir := t.TempDir()
			logFile := filepath.Join(dir, "test.log")

			rw, err := NewRotatingWriter(logFile, 1, 0, compress)
			require.NoError(t, err)

			chunk := []byte(strings.Repeat("x", 600*1024))
			_, err = rw.Write(chunk)
			require.NoError(t, err)
			_, err = rw.Write(chunk)
			require.NoError(t, err)
			require.NoError(t, rw.Close())

			rotated, err := filepath.Glob(logFile + ".*")
			require.NoError(t, err)
			require.Len(t, rotated, 1)
			assert.Equal(t, compress, strings.HasSuffix(rotated[0], ".gz"))

			info, err := os.Stat(logFile)
			require.NoError(t, err)
			assert.Equal(t, int64(len(chunk)), info.Size())
		})
	}
}

func TestRemoveExpired(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "test.log")

	old := logFile + ".20000101-000000.000"
	fresh := logFile + ".29990101-000000.000"
	require.NoError(t, os.WriteFile(old, []byte("old"), 0644))
	require.NoError(t, os.WriteFile(fresh, []byte("new"), 0644))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))

	rw, err := NewRotatingWriter(logFile, 1, 7, false)
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}
