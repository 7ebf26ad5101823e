package crawlwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jpalmerr/crawlwatch/dashboard"
	"github.com/jpalmerr/crawlwatch/internal/poller"
	"github.com/jpalmerr/crawlwatch/internal/server"
	"github.com/jpalmerr/crawlwatch/internal/store"
)

const subscriberBuffer = 16

var (
	// ErrNoSession is returned by [Watcher.Wait] when no session is armed or
	// the session was stopped before it finished.
	ErrNoSession = errors.New("no polling session")

	// ErrClosed is returned by [Watcher.Wait] when the watcher is closed
	// while waiting.
	ErrClosed = errors.New("watcher closed")
)

// Watcher polls the crawl status of one [MonitorKey] at a time and exposes
// the result as an observable [State].
//
// A Watcher is created with [New] and armed with [Watcher.StartSession].
// The first fetch happens after the warm-up delay; further fetches follow at
// a fixed interval until every target is terminal or a fetch fails. Changing
// or clearing the key, calling [Watcher.StopSession], or cancelling the
// context passed to StartSession tears the session down, and no result of a
// torn-down session is ever published.
//
// The typical lifecycle is:
//
//	w, err := crawlwatch.New(crawlwatch.WithBaseURL("http://localhost:8000/api"))
//	if err != nil {
//	    slog.Error("failed to create watcher", "error", err)
//	    os.Exit(1)
//	}
//	defer w.Close()
//
//	key, _ := crawlwatch.NewMonitorKey("42", crawlwatch.WithSources("expedia"))
//	w.StartSession(ctx, key)
//	if err := w.Wait(ctx); err != nil {
//	    slog.Error("crawl watch failed", "error", err)
//	}
//
// All methods are safe for concurrent use.
type Watcher struct {
	client    *poller.StatusClient
	scheduler *poller.Scheduler
	store     *store.MemoryStore
	logger    *slog.Logger
	taskMode  bool

	subMu  sync.Mutex
	subs   map[chan State]struct{}
	closed bool

	callbacks []func(State)
	cbMu      sync.Mutex
	cbQueue   []State
	cbWake    chan struct{}
	cbStop    chan struct{}
	cbDone    chan struct{}

	closeOnce sync.Once
}

// New creates a [Watcher] with the given options.
//
// [WithBaseURL] is required. Other options have sensible defaults:
//   - Warm-up: 20 seconds
//   - Interval: 10 seconds
//   - Status path: /crawl-status/{key}/
//   - Decoder: [DefaultDecoder]
//   - Request timeout: none
//
// Returns an error if the base URL is missing or any option is invalid.
func New(opts ...Option) (*Watcher, error) {
	cfg := &watcherConfig{
		statusPath: DefaultStatusPath,
		warmup:     DefaultWarmup,
		interval:   DefaultInterval,
		decoder:    DefaultDecoder,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.baseURL == "" {
		return nil, errors.New("base URL is required")
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := poller.NewStatusClient(poller.ClientConfig{
		BaseURL:    cfg.baseURL,
		StatusPath: cfg.statusPath,
		Headers:    copyMap(cfg.headers),
		Timeout:    cfg.requestTimeout,
		Decoder:    poller.Decoder(cfg.decoder),
		HTTPClient: cfg.httpClient,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create status client: %w", err)
	}

	w := &Watcher{
		client:    client,
		store:     store.NewMemoryStore(),
		logger:    logger,
		taskMode:  cfg.taskMode,
		subs:      make(map[chan State]struct{}),
		callbacks: cfg.stateCallbacks,
		cbWake:    make(chan struct{}, 1),
		cbStop:    make(chan struct{}),
		cbDone:    make(chan struct{}),
	}

	w.scheduler = poller.NewScheduler(client, poller.SchedulerConfig{
		Warmup:   cfg.warmup,
		Interval: cfg.interval,
		Clock:    cfg.clock,
	}, w.publish, logger)

	go w.dispatch()

	return w, nil
}

// StartSession arms polling for key.
//
// The zero key stops polling, like [Watcher.StopSession]. Starting the key
// that is already being polled is a no-op; starting it again after the
// session reached [PhaseDone] or [PhaseErrored] re-arms it from the warm-up
// delay.
//
// ctx is the observer's lifetime, not a request deadline: when it ends the
// session is torn down and the state returns to idle.
func (w *Watcher) StartSession(ctx context.Context, key MonitorKey) {
	w.scheduler.Start(ctx, key.toPoller())
}

// StopSession tears down the current session, cancelling any in-flight
// fetch, and resets the state to idle.
func (w *Watcher) StopSession() {
	w.scheduler.Stop()
}

// Observe returns the current [State].
func (w *Watcher) Observe() State {
	return w.scheduler.State()
}

// Subscribe returns a channel receiving every published [State].
//
// The channel is buffered; a consumer that falls behind misses intermediate
// states but can always call [Watcher.Observe] for the latest one. Call
// [Watcher.Unsubscribe] when done. After [Watcher.Close] the returned
// channel is closed.
func (w *Watcher) Subscribe() <-chan State {
	ch := make(chan State, subscriberBuffer)

	w.subMu.Lock()
	defer w.subMu.Unlock()
	if w.closed {
		close(ch)
		return ch
	}
	w.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// more than once.
func (w *Watcher) Unsubscribe(ch <-chan State) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	for sub := range w.subs {
		if sub == ch {
			delete(w.subs, sub)
			close(sub)
			return
		}
	}
}

// Wait blocks until the current session finishes.
//
// Returns nil when every target is terminal, the fetch error when the
// session fails, [ErrNoSession] when nothing is being polled or the session
// is stopped, [ErrClosed] when the watcher is closed, and ctx.Err() when
// ctx ends first. Cancelling ctx does not stop the session.
func (w *Watcher) Wait(ctx context.Context) error {
	ch := w.Subscribe()
	defer w.Unsubscribe(ch)

	for {
		st := w.Observe()
		switch st.Phase {
		case PhaseDone:
			return nil
		case PhaseErrored:
			return st.Err
		case PhaseIdle:
			if w.isClosed() {
				return ErrClosed
			}
			return ErrNoSession
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return ErrClosed
			}
		}
	}
}

// TriggerCrawl asks the crawler API to start crawling a hotel.
//
// TriggerCrawl does not start polling; follow it with
// [Watcher.StartSession], or use [Watcher.KeyFor] to derive the key the
// accepted crawl should be watched under.
func (w *Watcher) TriggerCrawl(ctx context.Context, req CrawlRequest) (CrawlAccepted, error) {
	if req.HotelID == "" {
		return CrawlAccepted{}, errors.New("hotel id is required")
	}

	accepted, err := w.client.StartCrawl(ctx, req)
	if err != nil {
		w.logger.Warn("crawl start rejected",
			"hotel_id", req.HotelID,
			"error", err.Error(),
		)
		return CrawlAccepted{}, err
	}

	w.logger.Info("crawl started",
		"hotel_id", req.HotelID,
		"sources", req.Sources,
		"task_id", accepted.TaskID,
		"message", accepted.Message,
	)
	return accepted, nil
}

// KeyFor returns the [MonitorKey] that tracks an accepted crawl: the task id
// in task-polling mode, the hotel id with the requested sources otherwise.
func (w *Watcher) KeyFor(req CrawlRequest, accepted CrawlAccepted) (MonitorKey, error) {
	if w.taskMode {
		if accepted.TaskID == "" {
			return MonitorKey{}, errors.New("crawler did not return a task id")
		}
		return NewMonitorKey(accepted.TaskID)
	}
	return NewMonitorKey(req.HotelID, WithSources(req.Sources...))
}

// Serve runs the operator console on port until ctx is cancelled.
//
// The console shows the observable state live and lets an operator start,
// stop and trigger sessions. Sessions started from the console are bound to
// ctx.
//
// Returns nil on graceful shutdown, or an error if the HTTP server fails to
// start.
func (w *Watcher) Serve(ctx context.Context, port int, title string) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	if ctx.Err() != nil {
		return nil
	}

	httpServer := server.NewServer(w.store, &console{w: w, ctx: ctx}, port, dashboard.Assets, title, w.logger)
	if err := httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	w.logger.Info("console available", "url", fmt.Sprintf("http://localhost:%d", port))

	<-ctx.Done()
	w.logger.Info("console stopped")
	return nil
}

// Close tears down the current session, stops callback delivery after the
// pending callbacks ran, closes all subscriptions and releases idle
// connections. Safe to call multiple times.
//
// Close waits for the callback goroutine, so it must not be called from a
// state callback. A callback that needs to shut the watcher down calls
// [Watcher.StopSession] or runs Close on its own goroutine (go w.Close()).
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		// closed is set first so a waiter woken by the final idle state
		// reports ErrClosed
		w.subMu.Lock()
		w.closed = true
		w.subMu.Unlock()

		w.scheduler.Close()

		w.subMu.Lock()
		for sub := range w.subs {
			delete(w.subs, sub)
			close(sub)
		}
		w.subMu.Unlock()

		close(w.cbStop)
		<-w.cbDone

		w.client.Close()
	})
	return nil
}

func (w *Watcher) isClosed() bool {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	return w.closed
}

// publish is the scheduler sink. It runs under the scheduler lock and must
// not block.
func (w *Watcher) publish(st State) {
	w.store.Set(stateToStoreResult(st))

	w.subMu.Lock()
	for sub := range w.subs {
		select {
		case sub <- st.Clone():
		default:
		}
	}
	w.subMu.Unlock()

	if len(w.callbacks) == 0 {
		return
	}
	w.cbMu.Lock()
	w.cbQueue = append(w.cbQueue, st)
	w.cbMu.Unlock()
	select {
	case w.cbWake <- struct{}{}:
	default:
	}
}

// dispatch delivers queued states to the callbacks in publication order.
func (w *Watcher) dispatch() {
	defer close(w.cbDone)
	for {
		select {
		case <-w.cbWake:
			w.drainCallbacks()
		case <-w.cbStop:
			w.drainCallbacks()
			return
		}
	}
}

func (w *Watcher) drainCallbacks() {
	for {
		w.cbMu.Lock()
		batch := w.cbQueue
		w.cbQueue = nil
		w.cbMu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, st := range batch {
			for _, cb := range w.callbacks {
				invokeCallbackSafe(cb, st.Clone(), w.logger)
			}
		}
	}
}

// stateToStoreResult converts a poller state to its storage form.
func stateToStoreResult(st State) store.StateResult {
	var errStr *string
	if st.Err != nil {
		s := st.Err.Error()
		errStr = &s
	}

	targets := make([]store.TargetResult, len(st.Snapshot))
	for i, t := range st.Snapshot {
		targets[i] = store.TargetResult{
			ID:         t.ID,
			SourceName: t.SourceName,
			State:      string(t.State),
			LastRunAt:  t.LastRunAt,
			Message:    t.Message,
		}
	}

	return store.StateResult{
		SessionID: st.SessionID,
		Key:       st.Key,
		Phase:     string(st.Phase),
		Targets:   targets,
		Active:    st.Active,
		Loading:   st.Loading(),
		Error:     errStr,
		Polls:     st.Polls,
		UpdatedAt: st.UpdatedAt,
	}
}

// invokeCallbackSafe calls a state callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(State), st State, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("state callback panicked",
				"panic", r,
				"key", st.Key,
				"phase", st.Phase,
			)
		}
	}()
	cb(st)
}

// copyMap returns a copy of the map, or nil if input is nil.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// console adapts a Watcher to the console server. Sessions it starts live as
// long as the console does.
type console struct {
	w   *Watcher
	ctx context.Context
}

func (c *console) Watch(req server.WatchRequest) error {
	key, err := NewMonitorKey(req.Hotel, WithSources(req.Sources...), WithTargets(req.Targets...))
	if err != nil {
		return err
	}
	c.w.StartSession(c.ctx, key)
	return nil
}

func (c *console) Unwatch() {
	c.w.StopSession()
}

func (c *console) Trigger(ctx context.Context, req server.TriggerRequest) (server.TriggerResult, error) {
	crawl := CrawlRequest{
		HotelID:   req.HotelID,
		HotelName: req.HotelName,
		Sources:   req.Sources,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}

	accepted, err := c.w.TriggerCrawl(ctx, crawl)
	if err != nil {
		return server.TriggerResult{}, err
	}

	key, err := c.w.KeyFor(crawl, accepted)
	if err != nil {
		return server.TriggerResult{}, err
	}
	c.w.StartSession(c.ctx, key)

	return server.TriggerResult{
		Message: accepted.Message,
		TaskID:  accepted.TaskID,
		Key:     key.String(),
	}, nil
}
