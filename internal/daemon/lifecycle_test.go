package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("/data", "knife.pid"), PIDFilePath("/data"))
	assert.Equal(t, filepath.Join(os.TempDir(), "knife", "knife.pid"), PIDFilePath(""))
}

func TestLifecycleManagerStartStop(t *testing.T) {
	d := createTestDaemon(t)
	lm := d.lifecycle

	require.NoError(t, lm.Start())

	pid, err := ReadPID(lm.PIDFile())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	// our own PID file does not block a restart
	require.NoError(t, lm.Start())

	require.NoError(t, lm.Stop())
	assert.NoFileExists(t, lm.PIDFile())
	require.NoError(t, lm.Stop())
}

func TestLifecycleManagerRefusesLiveProcess(t *testing.T) {
	d := createTestDaemon(t)
	lm := d.lifecycle

	// the parent of the test binary is alive and is not us
	other := os.Getppid()
	require.NoError(t, os.WriteFile(lm.PIDFile(), []byte(strconv.Itoa(other)), 0644))

	err := lm.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadPID(filepath.Join(dir, "missing.pid"))
	assert.True(t, os.IsNotExist(err))

	bad := filepath.Join(dir, "bad.pid")
	require.NoError(t, os.WriteFile(bad, []byte("invalid"), 0644))
	_, err = ReadPID(bad)
	assert.Error(t, err)

	good := filepath.Join(dir, "good.pid")
	require.NoError(t, os.WriteFile(good, []byte("1234\n"), 0644))
	pid, err := ReadPID(good)
	require.NoError(t, err)
	assert.Equal(t, 1234, pid)
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, ProcessAlive(os.Getpid()))
}
