package crawlwatch

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jpalmerr/crawlwatch/internal/poller"
)

const (
	// DefaultWarmup is the delay before the first fetch of a session.
	DefaultWarmup = poller.DefaultWarmup

	// DefaultInterval is the delay between completed fetches.
	DefaultInterval = poller.DefaultInterval

	// DefaultStatusPath is the crawl-status route of the crawler API.
	DefaultStatusPath = poller.DefaultStatusPath

	// TaskStatusPath is the background-task route used by [WithTaskPolling].
	TaskStatusPath = "/tasks/{key}/"

	taskPollInterval = 5 * time.Second
)

// watcherConfig holds mutable state during Watcher construction.
type watcherConfig struct {
	baseURL        string
	statusPath     string
	taskMode       bool
	warmup         time.Duration
	interval       time.Duration
	requestTimeout time.Duration
	headers        map[string]string
	decoder        SnapshotDecoder
	httpClient     *http.Client
	logger         *slog.Logger
	stateCallbacks []func(State)
	clock          poller.Clock
}

// Option is a function that configures a [Watcher] during construction.
//
// Options are applied in order, so a later option overrides an earlier one.
// Options return an error if validation fails.
//
// Built-in options: [WithBaseURL], [WithStatusPath], [WithTaskPolling],
// [WithWarmup], [WithInterval], [WithRequestTimeout], [WithHeaders],
// [WithDecoder], [WithHTTPClient], [WithLogger], [WithStateCallback].
type Option func(*watcherConfig) error

// WithBaseURL sets the crawler API root, e.g. "http://localhost:8000/api".
//
// Required. The URL must be absolute.
func WithBaseURL(rawURL string) Option {
	return func(cfg *watcherConfig) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("base URL scheme must be http or https, got %q", u.Scheme)
		}
		if u.Host == "" {
			return errors.New("base URL must include a host")
		}
		cfg.baseURL = rawURL
		return nil
	}
}

// WithStatusPath sets the status route appended to the base URL. The
// placeholder "{key}" is replaced by the path-escaped [MonitorKey] ID.
//
// Defaults to [DefaultStatusPath].
//
// Returns an error if the path does not start with "/" or has no "{key}".
func WithStatusPath(path string) Option {
	return func(cfg *watcherConfig) error {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("status path must start with /, got %q", path)
		}
		if !strings.Contains(path, "{key}") {
			return fmt.Errorf("status path %q must contain {key}", path)
		}
		cfg.statusPath = path
		return nil
	}
}

// WithTaskPolling switches the watcher to background-task mode: the key ID
// is a task id, the route is [TaskStatusPath], bodies are decoded with
// [TaskDecoder], and both warm-up and interval are 5 seconds.
//
// Options given after WithTaskPolling still override these values. A later
// [WithStatusPath] changes the route but keeps task mode, so
// [Watcher.KeyFor] still keys accepted crawls by task id.
func WithTaskPolling() Option {
	return func(cfg *watcherConfig) error {
		cfg.taskMode = true
		cfg.statusPath = TaskStatusPath
		cfg.decoder = TaskDecoder
		cfg.warmup = taskPollInterval
		cfg.interval = taskPollInterval
		return nil
	}
}

// WithWarmup sets the delay between arming a session and its first fetch.
//
// Defaults to 20 seconds. Zero fetches on the next tick.
//
// Returns an error if the duration is negative.
func WithWarmup(d time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if d < 0 {
			return errors.New("warmup cannot be negative")
		}
		cfg.warmup = d
		return nil
	}
}

// WithInterval sets the fixed delay between the end of one fetch and the
// start of the next.
//
// Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithInterval(d time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if d <= 0 {
			return errors.New("interval must be positive")
		}
		cfg.interval = d
		return nil
	}
}

// WithRequestTimeout bounds each status request. A timed-out request fails
// the session like any other transport error.
//
// Defaults to zero, which leaves timing to the HTTP transport.
//
// Returns an error if the duration is negative.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if d < 0 {
			return errors.New("request timeout cannot be negative")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithHeaders sets HTTP headers sent with every request.
//
// Takes key-value pairs: WithHeaders("Authorization", "Bearer token").
// Can be called multiple times; later values for the same header win.
//
// Returns an error if an odd number of arguments is provided or a header
// name is empty.
func WithHeaders(pairs ...string) Option {
	return func(cfg *watcherConfig) error {
		if len(pairs)%2 != 0 {
			return errors.New("headers require key-value pairs (odd number of arguments provided)")
		}
		if cfg.headers == nil {
			cfg.headers = make(map[string]string, len(pairs)/2)
		}
		for i := 0; i < len(pairs); i += 2 {
			if pairs[i] == "" {
				return errors.New("header name cannot be empty")
			}
			cfg.headers[pairs[i]] = pairs[i+1]
		}
		return nil
	}
}

// WithDecoder sets the [SnapshotDecoder] used for status bodies.
//
// Defaults to [DefaultDecoder].
//
// Returns an error if the decoder is nil.
func WithDecoder(d SnapshotDecoder) Option {
	return func(cfg *watcherConfig) error {
		if d == nil {
			return errors.New("decoder cannot be nil")
		}
		cfg.decoder = d
		return nil
	}
}

// WithHTTPClient replaces the pooled HTTP client.
//
// Returns an error if the client is nil.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *watcherConfig) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = c
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the watcher.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *watcherConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithStateCallback registers a function called with every published
// [State], in publication order.
//
// Callbacks run on a dedicated goroutine, never under the watcher's lock, so
// they may call back into the watcher. The exception is [Watcher.Close],
// which waits for that goroutine; call it as go w.Close() from a callback. A slow callback delays later
// callbacks but not polling. Panics are recovered and logged.
//
// Example:
//
//	w, err := crawlwatch.New(
//	    crawlwatch.WithBaseURL("http://localhost:8000/api"),
//	    crawlwatch.WithStateCallback(func(st crawlwatch.State) {
//	        if st.Phase == crawlwatch.PhaseDone {
//	            log.Printf("crawl of %s finished", st.Key)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithStateCallback(cb func(State)) Option {
	return func(cfg *watcherConfig) error {
		if cb == nil {
			return nil
		}
		cfg.stateCallbacks = append(cfg.stateCallbacks, cb)
		return nil
	}
}

// withClock substitutes the scheduler clock in tests.
func withClock(c poller.Clock) Option {
	return func(cfg *watcherConfig) error {
		cfg.clock = c
		return nil
	}
}
