package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/harun/knife/internal/daemon"
	"github.com/spf13/cobra"
)

// ServerStatus is the output of the status command
type ServerStatus struct {
	Status  string `json:"status"`
	PID     int    `json:"pid,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
	PIDFile string `json:"pid_file"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local server status",
	Long:  `Show whether a knife server using this data directory is running.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return printValue(cmd, serverStatus(daemon.PIDFilePath(appConfig.DataDir)))
}

func serverStatus(pidFile string) ServerStatus {
	status := ServerStatus{Status: "stopped", PIDFile: pidFile}

	pid, err := daemon.ReadPID(pidFile)
	if err != nil || !daemon.ProcessAlive(pid) {
		return status
	}

	status.Status = "running"
	status.PID = pid
	// the PID file is written once at start
	if info, err := os.Stat(pidFile); err == nil {
		status.Uptime = formatDuration(time.Since(info.ModTime()))
	}
	return status
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
