package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/crawlwatch"
	"github.com/jpalmerr/crawlwatch/config"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the operator console.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the operator console",
	Long: `Start the crawlwatch operator console.

The console will:
  - Load configuration from the specified YAML file
  - Serve a page that shows the watched crawl live
  - Accept watch, stop and trigger requests from the page or the API

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  crawlwatch serve -c config.yaml
  crawlwatch serve --config /etc/crawlwatch/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger, logCloser := newLogger(cfg.LogFile, verbose)
	defer func() { _ = logCloser.Close() }()

	logger.Info("config loaded",
		"api_base_url", cfg.APIBaseURL,
		"mode", cfg.Mode,
	)
	logger.Info("starting console", "port", cfg.Port)

	w, err := crawlwatch.New(config.BuildOptions(cfg, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// serve console - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Serve(ctx, cfg.Port, cfg.Title)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
