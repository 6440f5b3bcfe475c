package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/harun/knife/pkg/client"
	"github.com/spf13/cobra"
)

var (
	codeArgv []string
	codeRoot bool
)

var codeCmd = &cobra.Command{
	Use:   "code",
	Short: "Run scripts in a session or the root namespace",
}

var codeExecCmd = &cobra.Command{
	Use:   "exec CODE",
	Short: "Execute CODE ('-' reads stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := readSource(cmd, args[0])
		if err != nil {
			return err
		}
		return runCode(cmd, code)
	},
}

var codeEvalCmd = &cobra.Command{
	Use:   "eval EXPR",
	Short: "Evaluate EXPR and print its value as the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCode(cmd, fmt.Sprintf("__result__ = (%s)", args[0]))
	},
}

var codeRunCmd = &cobra.Command{
	Use:   "run PATH",
	Short: "Execute a local script file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read script: %w", err)
		}
		return runCode(cmd, string(data))
	},
}

var codeResetRootCmd = &cobra.Command{
	Use:   "reset-root",
	Short: "Replace the root namespace with a fresh one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) (interface{}, error) {
			if err := c.ResetRoot(ctx); err != nil {
				return nil, err
			}
			return true, nil
		})
	},
}

func runCode(cmd *cobra.Command, code string) error {
	if codeRoot {
		return withClient(cmd, func(ctx context.Context, c *client.Client) (interface{}, error) {
			return c.RunRootCode(ctx, code, codeArgv)
		})
	}
	return withSession(cmd, func(ctx context.Context, c *client.Client, sess string) (interface{}, error) {
		return c.RunCode(ctx, sess, code, codeArgv)
	})
}

func init() {
	for _, cmd := range []*cobra.Command{codeExecCmd, codeEvalCmd, codeRunCmd} {
		cmd.Flags().StringArrayVar(&codeArgv, "argv", nil, "script argument (repeatable)")
		cmd.Flags().BoolVar(&codeRoot, "root", false, "run in the shared root namespace")
	}

	codeCmd.AddCommand(codeExecCmd, codeEvalCmd, codeRunCmd, codeResetRootCmd)
	rootCmd.AddCommand(codeCmd)
}
