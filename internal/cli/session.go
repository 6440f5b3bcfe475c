package cli

import (
	"context"

	"github.com/harun/knife/pkg/client"
	"github.com/spf13/cobra"
)

var dropResource bool

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage named sessions",
}

var sessionOpenCmd = &cobra.Command{
	Use:   "open [NAME]",
	Short: "Open a session (defaults to --session)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := sessionArg(args)
		return withClient(cmd, func(ctx context.Context, c *client.Client) (interface{}, error) {
			return c.OpenSession(ctx, name)
		})
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) (interface{}, error) {
			return c.ListSessions(ctx)
		})
	},
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close [NAME]",
	Short: "Close a session without closing its resource",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := sessionArg(args)
		return withClient(cmd, func(ctx context.Context, c *client.Client) (interface{}, error) {
			return c.CloseSession(ctx, name)
		})
	},
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the session namespace",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, c *client.Client, sess string) (interface{}, error) {
			if err := c.ResetSession(ctx, sess, !dropResource); err != nil {
				return nil, err
			}
			return true, nil
		})
	},
}

func init() {
	sessionResetCmd.Flags().BoolVar(&dropResource, "drop-resource", false, "also drop the attached resource")

	sessionCmd.AddCommand(sessionOpenCmd, sessionListCmd, sessionCloseCmd, sessionResetCmd)
	rootCmd.AddCommand(sessionCmd)
}

func sessionArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return appConfig.Client.Session
}
