package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/harun/knife/internal/config"
	"github.com/spf13/cobra"
)

var forceInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or write the knife configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printValue(cmd, json.RawMessage(appConfig.String()))
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to the config file",
	Long: `Write the effective configuration (defaults, environment and flags)
to the config file so that later commands pick it up.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing config file")

	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	path := loader.GetConfigPath()

	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}
	if err := loader.Save(appConfig); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	return printValue(cmd, map[string]string{"config": path})
}
