// Package cli provides the colmapctl command-line interface.
package cli

import (
	"github.com/pgassner/colmapd/internal/client"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string

	// API client, created before any subcommand runs.
	api *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "colmapctl",
	Short: "Client for the colmapd reconstruction service",
	Long: `colmapctl submits capture data to a running colmapd instance and
tracks the resulting reconstruction jobs.

Jobs run asynchronously on the server: submission returns a job ID
immediately, and status/watch report progress until the job completes
or fails.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		api = client.New(serverURL)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"colmapd base URL (default COLMAPD_URL or http://localhost:8000)")
}
