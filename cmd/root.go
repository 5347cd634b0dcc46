// Package cmd defines and implements the CLI commands for the migsim executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migsim",
		Short: "Oracle to Elasticsearch migration service.",
		Long: `migsim simulates and tracks Oracle to Elasticsearch data migrations.
It manages mapping configurations, runs migration jobs batch by batch, and
exposes an HTTP API with progress reporting and Prometheus metrics.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./migsim.yaml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
