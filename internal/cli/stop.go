package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/harun/knife/internal/daemon"
	"github.com/spf13/cobra"
)

var stopWait int

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a local knife server",
	Long: `Stop the knife server using this data directory.
Sends SIGTERM and waits for it to shut down, then falls back to SIGKILL.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopWait, "wait", 30, "seconds to wait for the server to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	pidFile := daemon.PIDFilePath(appConfig.DataDir)

	pid, err := daemon.ReadPID(pidFile)
	if err != nil || !daemon.ProcessAlive(pid) {
		return fmt.Errorf("server is not running (PID file: %s)", pidFile)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	deadline := time.Now().Add(time.Duration(stopWait) * time.Second)
	for time.Now().Before(deadline) {
		if !daemon.ProcessAlive(pid) {
			return printValue(cmd, ServerStatus{Status: "stopped", PID: pid, PIDFile: pidFile})
		}
		time.Sleep(100 * time.Millisecond)
	}

	zl := appLogger.Zerolog()
	zl.Warn().Int("pid", pid).Msg("Timeout reached, sending SIGKILL")
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}
	_ = os.Remove(pidFile)

	return printValue(cmd, ServerStatus{Status: "killed", PID: pid, PIDFile: pidFile})
}
