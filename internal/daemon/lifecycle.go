package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFileName is the name of the PID file inside the data directory
const PIDFileName = "knife.pid"

// PIDFilePath returns the PID file path for dataDir
func PIDFilePath(dataDir string) string {
	if dataDir == "" {
		dataDir = filepath.Join(os.TempDir(), "knife")
	}
	return filepath.Join(dataDir, PIDFileName)
}

// LifecycleManager owns the PID file of a running server
type LifecycleManager struct {
	daemon  *Daemon
	pidFile string
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager(d *Daemon) *LifecycleManager {
	return &LifecycleManager{
		daemon:  d,
		pidFile: PIDFilePath(d.config.DataDir),
	}
}

// Start writes the PID file. It fails if the file names another live process.
func (l *LifecycleManager) Start() error {
	if pid, err := ReadPID(l.pidFile); err == nil && pid != os.Getpid() && ProcessAlive(pid) {
		return fmt.Errorf("server already running with PID %d (PID file: %s)", pid, l.pidFile)
	}

	if err := os.MkdirAll(filepath.Dir(l.pidFile), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(l.pidFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	log := l.daemon.logger.Component("lifecycle")
	log.Info().
		Str("pid_file", l.pidFile).
		Int("pid", os.Getpid()).
		Msg("Lifecycle manager started")
	return nil
}

// Stop removes the PID file
func (l *LifecycleManager) Stop() error {
	if err := os.Remove(l.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// PIDFile returns the PID file path
func (l *LifecycleManager) PIDFile() string {
	return l.pidFile
}

// ReadPID reads the process id stored in pidFile
func ReadPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file: %s", pidFile)
	}
	return pid, nil
}

// ProcessAlive reports whether a process with pid exists
func ProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds, so check with signal 0
	err = process.Signal(syscall.Signal(0))
	return err == nil || err == syscall.EPERM
}
