package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/jpalmerr/crawlwatch"
	"github.com/jpalmerr/crawlwatch/config"
	"github.com/spf13/cobra"
)

// watchCmd polls one crawl until it finishes.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch one crawl until it finishes",
	Long: `Watch the crawl status of one hotel (or one background task) until every
source reports SUCCESS or FAILURE, printing each state change.

With --trigger the crawl is started first and the accepted crawl is watched.
In task mode the task id returned by the crawler is watched; without
--trigger pass it with --task.

Exit codes:
  0 - Every source reached a terminal state
  1 - A status request failed, or the watch was interrupted

Example:
  crawlwatch watch -c config.yaml --hotel 42
  crawlwatch watch -c config.yaml --hotel 42 --ota expedia --ota agoda --trigger
  crawlwatch watch -c config.yaml --task 7f3c2a`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	watchCmd.Flags().String("hotel", "", "hotel id to watch")
	watchCmd.Flags().String("hotel-name", "", "hotel name sent with --trigger")
	watchCmd.Flags().String("task", "", "task id to watch (task mode)")
	watchCmd.Flags().StringSlice("ota", nil, "OTA source to watch (repeatable; defaults to the config's sources)")
	watchCmd.Flags().StringSlice("target", nil, "target id filter sent to the crawler (repeatable)")
	watchCmd.Flags().Bool("trigger", false, "start the crawl before watching")
	watchCmd.Flags().String("start-date", "", "first stay date crawled with --trigger (YYYY-MM-DD)")
	watchCmd.Flags().String("end-date", "", "last stay date crawled with --trigger (YYYY-MM-DD)")
	_ = watchCmd.MarkFlagRequired("config")
}

func runWatch(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	hotel, _ := cmd.Flags().GetString("hotel")
	hotelName, _ := cmd.Flags().GetString("hotel-name")
	task, _ := cmd.Flags().GetString("task")
	otas, _ := cmd.Flags().GetStringSlice("ota")
	targets, _ := cmd.Flags().GetStringSlice("target")
	trigger, _ := cmd.Flags().GetBool("trigger")
	startDate, _ := cmd.Flags().GetString("start-date")
	endDate, _ := cmd.Flags().GetString("end-date")

	if len(otas) == 0 {
		otas = cfg.Sources
	}

	switch {
	case trigger && hotel == "":
		return errors.New("--trigger requires --hotel")
	case !trigger && hotel == "" && task == "":
		return errors.New("one of --hotel or --task is required")
	case hotel != "" && task != "":
		return errors.New("--hotel and --task are mutually exclusive")
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger, logCloser := newLogger(cfg.LogFile, verbose)
	defer func() { _ = logCloser.Close() }()

	printer := &statePrinter{out: cmd.OutOrStdout()}
	opts := append(config.BuildOptions(cfg, logger), crawlwatch.WithStateCallback(printer.print))

	w, err := crawlwatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var key crawlwatch.MonitorKey
	if trigger {
		req := crawlwatch.CrawlRequest{
			HotelID:   hotel,
			HotelName: hotelName,
			Sources:   otas,
			StartDate: startDate,
			EndDate:   endDate,
		}
		accepted, err := w.TriggerCrawl(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to start crawl: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "crawl accepted: %s\n", accepted.Message)

		key, err = w.KeyFor(req, accepted)
		if err != nil {
			return err
		}
	} else {
		id := hotel
		if task != "" {
			id = task
		}
		key, err = crawlwatch.NewMonitorKey(id,
			crawlwatch.WithSources(otas...),
			crawlwatch.WithTargets(targets...),
		)
		if err != nil {
			return fmt.Errorf("invalid key: %w", err)
		}
	}

	w.StartSession(ctx, key)
	waitErr := w.Wait(ctx)
	final := w.Observe()

	// flush pending state lines before the summary
	_ = w.Close()

	// an interrupt also tears the session down, so Wait may report the
	// idle state instead of the cancellation
	if ctx.Err() != nil && final.Phase != crawlwatch.PhaseDone && final.Phase != crawlwatch.PhaseErrored {
		return errors.New("watch interrupted")
	}
	if waitErr != nil {
		if errors.Is(waitErr, context.Canceled) {
			return errors.New("watch interrupted")
		}
		return fmt.Errorf("watch failed: %w", waitErr)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "done: %s\n", summarize(final))
	return nil
}

// statePrinter writes one block per published state.
type statePrinter struct {
	out io.Writer

	mu   sync.Mutex
	seen bool
}

var stateGlyphs = map[crawlwatch.TargetState]string{
	crawlwatch.StateSuccess:  "✓",
	crawlwatch.StateFailure:  "✗",
	crawlwatch.StatePending:  "○",
	crawlwatch.StateNeverRun: "–",
}

func (p *statePrinter) print(st crawlwatch.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// the idle state published on close is noise
	if st.Phase == crawlwatch.PhaseIdle && p.seen {
		return
	}
	p.seen = true

	fmt.Fprintf(p.out, "[%s] %s polls=%d\n", st.Phase, st.Key, st.Polls)
	if st.Loading() {
		fmt.Fprintln(p.out, "  waiting for the crawler to report...")
	}
	for _, t := range st.Snapshot {
		line := fmt.Sprintf("  %s %-12s %s", stateGlyphs[t.State], displayName(t), t.State)
		if t.Message != "" {
			line += "  " + t.Message
		}
		fmt.Fprintln(p.out, line)
	}
	if st.Err != nil {
		fmt.Fprintf(p.out, "  error: %v\n", st.Err)
	}
}

func displayName(t crawlwatch.TargetStatus) string {
	if t.SourceName != "" {
		return t.SourceName
	}
	return t.ID
}

// summarize counts targets per terminal state.
func summarize(st crawlwatch.State) string {
	var succeeded, failed []string
	for _, t := range st.Snapshot {
		switch t.State {
		case crawlwatch.StateSuccess:
			succeeded = append(succeeded, displayName(t))
		case crawlwatch.StateFailure:
			failed = append(failed, displayName(t))
		}
	}

	summary := fmt.Sprintf("%d succeeded", len(succeeded))
	if len(failed) > 0 {
		summary += fmt.Sprintf(", %d failed (%s)", len(failed), strings.Join(failed, ", "))
	}
	return summary
}
