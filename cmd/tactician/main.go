// tactician - trading math, paper positions and price prediction for a
// local dashboard.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "tactician",
		Short: "Trading calculators, paper ledger and prediction game",
		Long: `tactician computes futures and spot position metrics, blends spot
cost basis, keeps a ledger of paper positions marked to live quotes, and runs
a timed up/down price prediction game.

Run "tactician serve" for the HTTP API, or use the calculator subcommands
directly from the shell.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(calcCmd())
	rootCmd.AddCommand(averageCmd())
	rootCmd.AddCommand(targetCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tactician version %s\n", version)
		},
	}
}
