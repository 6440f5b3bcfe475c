package cli

import (
	"github.com/harun/knife/internal/daemon"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the knife server in the foreground",
	Long: `Run the knife server in the foreground until SIGINT or SIGTERM.
The server listens on server.host:server.port (--host/--port override both
the server and client addresses).`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := daemon.New(appConfig, appLogger, version)
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return err
	}
	return d.Wait(cmd.Context())
}
