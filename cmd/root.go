// Package cmd wires the CLI: serve, migrate, index and version.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nestora",
	Short: "Nestora - conversational property lead qualification",
	Long: `Nestora runs the qualification agent: a streaming conversational
service that captures buyer requirements, searches live inventory and
hands qualified leads to human agents.

Run "nestora serve" to start the HTTP server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
