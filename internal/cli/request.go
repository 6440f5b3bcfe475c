package cli

import (
	"context"

	"github.com/harun/knife/pkg/client"
	"github.com/spf13/cobra"
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Inspect or interrupt the request holding the engine",
}

var requestStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active request",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) (interface{}, error) {
			return c.RequestStatus(ctx)
		})
	},
}

var requestInterruptCmd = &cobra.Command{
	Use:   "interrupt",
	Short: "Interrupt the active request",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) (interface{}, error) {
			return c.Interrupt(ctx)
		})
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the server is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) (interface{}, error) {
			return c.Ping(ctx)
		})
	},
}

func init() {
	requestCmd.AddCommand(requestStatusCmd, requestInterruptCmd)
	rootCmd.AddCommand(requestCmd, pingCmd)
}
