// Package commands implements the foremanctl CLI: a thin HTTP client of
// the Controller's Status/Control Surface (spec.md §6).
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "foremanctl",
	Short: "Operate a foreman autoscaling controller",
	Long: `foremanctl talks to a running foreman controller's HTTP surface to
inspect worker state and trigger manual scaling actions.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	defaultURL := os.Getenv("FOREMAN_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "foreman controller base URL")
}
