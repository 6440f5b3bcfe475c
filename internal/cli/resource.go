package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/harun/knife/pkg/client"
	"github.com/spf13/cobra"
)

var (
	includeUnnamed bool
	fullListing    bool
	attachMatch    string
	noAnalysis     bool
	loadOptions    []string
	forceDetach    bool
)

var resourceCmd = &cobra.Command{
	Use:   "resource",
	Short: "Discover, attach and detach analysis resources",
}

var resourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources the server can attach",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, c *client.Client, sess string) (interface{}, error) {
			return c.ListResources(ctx, sess, includeUnnamed, fullListing)
		})
	},
}

var resourceAttachCmd = &cobra.Command{
	Use:   "attach [INDEX]",
	Short: "Attach a listed resource by index or --match",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := client.AttachOptions{Match: attachMatch, IncludeUnnamed: includeUnnamed}
		if len(args) == 1 {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be an integer, got %q", args[0])
			}
			opts.Index = &idx
		}
		if err := opts.Validate(); err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, c *client.Client, sess string) (interface{}, error) {
			return c.AttachResource(ctx, sess, opts)
		})
	},
}

var resourceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Describe the attached resource",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, c *client.Client, sess string) (interface{}, error) {
			return c.ResourceStatus(ctx, sess)
		})
	},
}

var resourceLoadCmd = &cobra.Command{
	Use:   "load PATH",
	Short: "Open PATH on the server and attach it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		options, err := parseKV(loadOptions)
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, c *client.Client, sess string) (interface{}, error) {
			return c.LoadResource(ctx, sess, args[0], !noAnalysis, options)
		})
	},
}

var resourceDetachCmd = &cobra.Command{
	Use:   "detach",
	Short: "Detach the session resource",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, c *client.Client, sess string) (interface{}, error) {
			return c.DetachResource(ctx, sess, forceDetach)
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{resourceListCmd, resourceAttachCmd} {
		cmd.Flags().BoolVar(&includeUnnamed, "include-unnamed", false, "include resources without a filename")
	}
	resourceListCmd.Flags().BoolVar(&fullListing, "full", false, "describe every resource")
	resourceAttachCmd.Flags().StringVarP(&attachMatch, "match", "m", "", "attach the single resource whose filename contains this text")
	resourceLoadCmd.Flags().BoolVar(&noAnalysis, "no-analysis", false, "skip the initial analysis pass")
	resourceLoadCmd.Flags().StringArrayVarP(&loadOptions, "option", "o", nil, "engine load option as KEY=VALUE (repeatable)")
	resourceDetachCmd.Flags().BoolVar(&forceDetach, "force", false, "close the resource even when borrowed")

	resourceCmd.AddCommand(resourceListCmd, resourceAttachCmd, resourceStatusCmd, resourceLoadCmd, resourceDetachCmd)
	rootCmd.AddCommand(resourceCmd)
}
