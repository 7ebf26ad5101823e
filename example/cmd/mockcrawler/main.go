// Standalone fake crawler API for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockcrawler
//
// Then in another terminal:
//
//	go run ./cmd/crawlwatch serve -c example/config.yaml
//	go run ./cmd/crawlwatch watch -c example/config.yaml --hotel 42 --trigger
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jpalmerr/crawlwatch/example/mockcrawler"
)

func main() {
	fmt.Println("Mock crawler API starting on :8000 (routes under /api)")
	fmt.Println("Started crawls stay PENDING for 10-30s, then settle")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	r := chi.NewRouter()
	r.Mount("/api", mockcrawler.New().Handler())

	srv := &http.Server{
		Addr:              ":8000",
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
