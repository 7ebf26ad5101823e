package main

import (
	"fmt"
	"strings"

	"github.com/jpalmerr/crawlwatch/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without contacting the crawler.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a crawlwatch configuration file without contacting the crawler.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  crawlwatch validate -c config.yaml
  crawlwatch validate --config /etc/crawlwatch/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	sources := "(crawler default)"
	if len(cfg.Sources) > 0 {
		sources = strings.Join(cfg.Sources, ", ")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:      %d\n", cfg.Port)
	fmt.Fprintf(out, "  API:       %s\n", cfg.APIBaseURL)
	fmt.Fprintf(out, "  Mode:      %s\n", cfg.Mode)
	fmt.Fprintf(out, "  Warm-up:   %s\n", describeDuration(cfg.Warmup, "default"))
	fmt.Fprintf(out, "  Interval:  %s\n", describeInterval(cfg.Interval))
	fmt.Fprintf(out, "  Sources:   %s\n", sources)

	return nil
}

func describeDuration(d *config.Duration, fallback string) string {
	if d == nil {
		return fallback
	}
	return d.Duration().String()
}

func describeInterval(d config.Duration) string {
	if d == 0 {
		return "default"
	}
	return d.Duration().String()
}
