package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/switchboard/internal/config"
	"github.com/aretw0/switchboard/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	v      = viper.New()
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "switchboard",
	Short: "Switchboard runs one chat session per tenant behind a single API",
	Long: `Switchboard manages authenticated chat sessions for many tenants at once.
It drives an automation bridge, journals session state and exposes group
operations over HTTP and MCP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(v, path)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = logging.New(logging.ParseLevel(cfg.LogLevel), logging.Format(cfg.LogFormat))
		slog.SetDefault(logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")

	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log_format", flags.Lookup("log-format"))
}
