// Package main is the entry point for the crawlwatch CLI.
//
// crawlwatch can be used as a library (SDK) or as a standalone binary with
// YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	crawlwatch serve -c config.yaml                    # Start the operator console
//	crawlwatch watch -c config.yaml --hotel 42         # Watch one hotel until done
//	crawlwatch watch -c config.yaml --hotel 42 --trigger
//	crawlwatch validate -c config.yaml                 # Validate configuration
//	crawlwatch version                                 # Show version info
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultEnvFile = ".env"

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "crawlwatch",
	Short: "Watch OTA crawl jobs until they finish",
	Long: `crawlwatch triggers hotel crawls on a crawler API and polls their
status until every OTA source reports SUCCESS or FAILURE.

Quick start:
  1. Create a config file (crawlwatch.yaml)
  2. Run: crawlwatch serve -c crawlwatch.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  api_base_url: ${CRAWLER_API_URL:-http://localhost:8000/api}
  warmup: 20s
  interval: 10s
  sources: [expedia, agoda, rakuten]

Variables referenced by the config may be placed in a .env file next to it.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnvFile,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// loadEnvFile loads variables from the env file before any command runs.
// Variables already set in the environment win. A missing default file is
// not an error; a missing file named explicitly is.
func loadEnvFile(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("env-file")
	if path == "" {
		return nil
	}

	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("env-file") {
		return nil
	}
	return fmt.Errorf("failed to load env file: %w", err)
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this crawlwatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "crawlwatch %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", defaultEnvFile, "path to a .env file loaded before the config")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(versionCmd)
}
