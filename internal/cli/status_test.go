package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerStatus(t *testing.T) {
	dir := t.TempDir()

	t.Run("no pid file", func(t *testing.T) {
		status := serverStatus(filepath.Join(dir, "missing.pid"))
		assert.Equal(t, "stopped", status.Status)
		assert.Zero(t, status.PID)
	})

	t.Run("invalid pid file", func(t *testing.T) {
		pidFile := filepath.Join(dir, "invalid.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte("invalid"), 0644))

		assert.Equal(t, "stopped", serverStatus(pidFile).Status)
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatDuration(tt.duration)
			assert.Equal(t, tt.expected, result)
		})
	}
}
