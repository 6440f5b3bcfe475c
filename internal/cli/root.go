package cli

import (
	"fmt"

	"github.com/harun/knife/internal/config"
	"github.com/harun/knife/internal/logger"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile     string
	logLevel    string
	connectAddr string
	hostFlag    string
	portFlag    int
	timeoutFlag float64
	sessionFlag string
	prettyFlag  bool
)

var (
	appConfig *config.Config
	appLogger *logger.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "knife",
	Short: "Knife - shared analysis sessions over JSON-RPC",
	Long: `Knife serves a single analysis engine to many clients. Clients work in
named sessions, attach binaries discovered by the server, run scripts against
them and can interrupt whatever request currently holds the engine.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appLogger != nil {
			_ = appLogger.Close()
			appLogger = nil
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.knife/knife.json)")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVarP(&connectAddr, "connect", "c", "", "server endpoint as HOST:PORT or tcp://HOST:PORT")
	pf.StringVar(&hostFlag, "host", config.DefaultHost, "server host")
	pf.IntVar(&portFlag, "port", config.DefaultPort, "server port")
	pf.Float64Var(&timeoutFlag, "timeout", config.DefaultTimeout, "request timeout in seconds (0 disables)")
	pf.StringVarP(&sessionFlag, "session", "s", config.DefaultSession, "session name")
	pf.BoolVar(&prettyFlag, "pretty", false, "indent JSON output")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// setup loads the configuration, applies flag overrides and starts logging
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg := logger.FromConfig(cfg.Logging, true)
	logCfg.Output = cmd.ErrOrStderr()
	log, err := logger.New(logCfg)
	if err != nil {
		return err
	}

	appConfig = cfg
	appLogger = log
	return nil
}

// applyFlags overrides cfg with the global flags the user actually set
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("host") {
		cfg.Client.Host = hostFlag
		cfg.Server.Host = hostFlag
	}
	if flags.Changed("port") {
		cfg.Client.Port = portFlag
		cfg.Server.Port = portFlag
	}
	if connectAddr != "" {
		host, port, err := config.ParseEndpoint(connectAddr)
		if err != nil {
			return err
		}
		cfg.Client.Host = host
		cfg.Client.Port = port
	}
	if flags.Changed("timeout") {
		cfg.Client.Timeout = timeoutFlag
	}
	if flags.Changed("session") {
		cfg.Client.Session = sessionFlag
	}
	return nil
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
