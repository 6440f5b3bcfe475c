package cli

import (
	"context"

	"github.com/harun/knife/pkg/client"
	"github.com/spf13/cobra"
)

var opCmd = &cobra.Command{
	Use:   "op",
	Short: "List and call engine operations",
}

var opListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the operation catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) (interface{}, error) {
			return c.ListOperations(ctx)
		})
	},
}

var opCallCmd = &cobra.Command{
	Use:   "call NAME [KEY=VALUE...]",
	Short: "Call an operation against the session resource",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseKV(args[1:])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, c *client.Client, sess string) (interface{}, error) {
			return c.CallOperation(ctx, sess, args[0], params)
		})
	},
}

func init() {
	opCmd.AddCommand(opListCmd, opCallCmd)
	rootCmd.AddCommand(opCmd)
}
