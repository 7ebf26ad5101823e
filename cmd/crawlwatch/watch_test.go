package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jpalmerr/crawlwatch"
)

func watchConfig(t *testing.T, baseURL string, extra string) string {
	t.Helper()
	return writeConfig(t, "api_base_url: "+baseURL+"\nwarmup: 0s\ninterval: 1s\n"+extra)
}

func TestRunWatch_ExitsCleanOnDone(t *testing.T) {
	var polls atomic.Int32
	crawler := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/crawl-status/42/" {
			http.NotFound(w, r)
			return
		}
		polls.Add(1)
		_, _ = w.Write([]byte(`[
			{"id": 1, "ota_name": "expedia", "last_crawl_status": "SUCCESS"},
			{"id": 2, "ota_name": "agoda", "last_crawl_status": "FAILURE", "last_crawl_message": "blocked"}
		]`))
	}))
	defer crawler.Close()

	output, err := executeCmd(t, "watch", "-c", watchConfig(t, crawler.URL, ""), "--hotel", "42")
	if err != nil {
		t.Fatalf("watch command error = %v\noutput: %s", err, output)
	}

	if polls.Load() != 1 {
		t.Errorf("polls = %d, want 1", polls.Load())
	}
	for _, phrase := range []string{"[WAITING] 42", "[DONE] 42 polls=1", "expedia", "blocked", "done: 1 succeeded, 1 failed (agoda)"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunWatch_FailsOnTransportError(t *testing.T) {
	crawler := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "database unavailable"}`))
	}))
	defer crawler.Close()

	output, err := executeCmd(t, "watch", "-c", watchConfig(t, crawler.URL, ""), "--hotel", "42")
	if err == nil {
		t.Fatal("watch command should fail when the status request fails")
	}
	if !strings.Contains(err.Error(), "database unavailable") {
		t.Errorf("error = %v, want remote message", err)
	}
	if !strings.Contains(output, "[ERRORED]") {
		t.Errorf("output should show the errored state\nGot: %s", output)
	}
}

func TestRunWatch_Trigger(t *testing.T) {
	var started atomic.Bool
	crawler := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/crawlers/start/":
			var body struct {
				Hotel struct {
					ID string `json:"id"`
				} `json:"hotel"`
				Options struct {
					OTAs []string `json:"otas"`
				} `json:"options"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Hotel.ID != "42" || len(body.Options.OTAs) != 1 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			started.Store(true)
			_, _ = w.Write([]byte(`{"message": "crawl queued"}`))
		case r.URL.Path == "/crawl-status/42/":
			_, _ = w.Write([]byte(`[{"id": 1, "ota_name": "rakuten", "last_crawl_status": "SUCCESS"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer crawler.Close()

	output, err := executeCmd(t, "watch", "-c", watchConfig(t, crawler.URL, ""),
		"--hotel", "42", "--ota", "rakuten", "--trigger")
	if err != nil {
		t.Fatalf("watch command error = %v\noutput: %s", err, output)
	}
	if !started.Load() {
		t.Error("crawl was not started")
	}
	if !strings.Contains(output, "crawl accepted: crawl queued") {
		t.Errorf("output missing acceptance\nGot: %s", output)
	}
	if !strings.Contains(output, "done: 1 succeeded") {
		t.Errorf("output missing summary\nGot: %s", output)
	}
}

func TestRunWatch_InterruptedWhilePolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchCmd.SetContext(ctx)
	t.Cleanup(func() { watchCmd.SetContext(context.Background()) })

	crawler := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the operator interrupts while the crawl is still running
		cancel()
		_, _ = w.Write([]byte(`[{"id": 1, "ota_name": "expedia", "last_crawl_status": "PENDING"}]`))
	}))
	defer crawler.Close()

	_, err := executeCmd(t, "watch", "-c", watchConfig(t, crawler.URL, ""), "--hotel", "42")
	if err == nil {
		t.Fatal("watch command should fail when interrupted")
	}
	if err.Error() != "watch interrupted" {
		t.Errorf("error = %q, want %q", err.Error(), "watch interrupted")
	}
}

func TestRunWatch_FlagValidation(t *testing.T) {
	configPath := watchConfig(t, "http://localhost:8000/api", "")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no key", args: nil, wantErr: "one of --hotel or --task is required"},
		{name: "trigger without hotel", args: []string{"--trigger"}, wantErr: "--trigger requires --hotel"},
		{name: "hotel and task", args: []string{"--hotel", "42", "--task", "t-1"}, wantErr: "mutually exclusive"},
		{name: "bad target", args: []string{"--hotel", "42", "--target", " "}, wantErr: "invalid key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"watch", "-c", configPath}, tt.args...)
			_, err := executeCmd(t, args...)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	st := crawlwatch.State{Snapshot: crawlwatch.Snapshot{
		{ID: "1", SourceName: "expedia", State: crawlwatch.StateSuccess},
		{ID: "2", State: crawlwatch.StateFailure},
		{ID: "3", SourceName: "rakuten", State: crawlwatch.StateFailure},
	}}

	got := summarize(st)
	want := "1 succeeded, 2 failed (2, rakuten)"
	if got != want {
		t.Errorf("summarize() = %q, want %q", got, want)
	}
}
