package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/dispatch/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Mercator Dispatch - backend request handler",
	Long: `Mercator Dispatch is the backend request handler of an application server.

It accepts connections from a reverse proxy on dedicated sockets, serves them
with a pool of workers and shuts down in an orderly way when its owner process
goes away or asks it to:
  - unix domain (or loopback TCP) socket for application sessions
  - loopback HTTP socket for health, readiness, metrics and status
  - soft shutdown that detaches from the process pool and drains workers

Configuration comes from an optional YAML file and DISPATCH_* environment
variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (environment only when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
}
