// Package cmd provides the command-line interface for the bridge.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Bridge transfers Jira Cloud issues to an on-premise Jira",
	Long: `Bridge reconciles a Jira Cloud instance with an on-premise Jira instance.
It maintains mappings between cloud and on-premise projects and issue types,
transfers newly created cloud issues into equivalent on-premise issues, and
keeps an auditable transfer log with per-issue retry.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(checkCmd)
}
