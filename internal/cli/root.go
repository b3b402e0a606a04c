// Package cli defines the routingd command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "routingd",
	Short: "routingd - cross-currency payment routing engine",
	Long: `routingd discovers and executes multi-hop conversion routes between
fiat currencies and Solana stablecoins. It keeps a live cache of venue
quotes, scores candidate routes by settlement risk, and drives accepted
quotes through reservation, deposit, and execution.`,
	Version: "0.1.0-dev",
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path")
}
