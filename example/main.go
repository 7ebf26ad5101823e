package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jpalmerr/crawlwatch"
	"github.com/jpalmerr/crawlwatch/example/mockcrawler"
)

func main() {
	// start the fake crawler API (see mockcrawler/)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		slog.Error("failed to listen", "error", err)
		os.Exit(1)
	}
	r := chi.NewRouter()
	r.Mount("/api", mockcrawler.New().Handler())
	go func() { _ = http.Serve(ln, r) }()

	baseURL := fmt.Sprintf("http://%s/api", ln.Addr())

	w, err := crawlwatch.New(
		crawlwatch.WithBaseURL(baseURL),
		crawlwatch.WithWarmup(2*time.Second),
		crawlwatch.WithInterval(3*time.Second),
		crawlwatch.WithStateCallback(func(st crawlwatch.State) {
			if st.Phase == crawlwatch.PhaseDone {
				slog.Info("crawl finished", "key", st.Key, "polls", st.Polls)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}
	defer w.Close()

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   crawlwatch Demo                                     ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 in your browser          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Hotel 42 is crawled on expedia, agoda and rakuten.  ║")
	fmt.Println("  ║   Trigger more crawls from the page.                  ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req := crawlwatch.CrawlRequest{HotelID: "42", HotelName: "Hotel Sunroute"}
	accepted, err := w.TriggerCrawl(ctx, req)
	if err != nil {
		slog.Error("failed to start crawl", "error", err)
		os.Exit(1)
	}
	key, err := w.KeyFor(req, accepted)
	if err != nil {
		slog.Error("failed to derive key", "error", err)
		os.Exit(1)
	}
	w.StartSession(ctx, key)

	if err := w.Serve(ctx, 8080, "crawlwatch demo"); err != nil {
		slog.Error("console error", "error", err)
		os.Exit(1)
	}
}
