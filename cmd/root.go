// Package cmd defines and implements the CLI commands for the ingest
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Article ingestion pipeline for newsblend",
		Long: `ingest pulls syndication feeds from the configured sources, extracts
article text, summarizes it and persists the results. Run it one-shot with
"run" or as an HTTP service with "serve".`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./ingest.yaml)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
