package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/switchboard"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of switchboard",
	// Skips configuration loading.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "switchboard version %s\n", strings.TrimSpace(switchboard.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
