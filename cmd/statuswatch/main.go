// Package main is the entry point for the statuswatch CLI.
//
// statuswatch can be embedded as a library (SDK) or run as a standalone
// binary configured with YAML and environment variables. This CLI provides
// the standalone binary.
//
// Usage:
//
//	statuswatch run -c statuswatch.yaml      # Poll until interrupted
//	statuswatch run --once                   # One cycle, then exit
//	statuswatch validate -c statuswatch.yaml # Validate config and sources
//	statuswatch state -c statuswatch.yaml    # Show the persisted mapping
//	statuswatch version                      # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/jpalmerr/statuswatch"
	"github.com/spf13/cobra"
)

// Build metadata, set at build time via ldflags.
var (
	commit = "none"
	date   = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "statuswatch",
	Short: "Report new incidents from vendor status feeds",
	Long: `statuswatch polls vendor status pages (Atom or RSS feeds) and prints a
line each time a provider publishes a new incident.

Quick start:
  1. Create a sources file (sources.json):
       {"GitHub": "https://www.githubstatus.com/history.atom"}
  2. Run: statuswatch run

Every setting has a default and can be overridden by a YAML config file
(-c) or the environment variables STATE_FILE, SOURCES_FILE, POLL_INTERVAL,
ERROR_LOG_FILE and PORT.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this statuswatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "statuswatch %s\n", statuswatch.Version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
