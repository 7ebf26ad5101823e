package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultWarmup is the delay before the first fetch of a session; the
	// remote crawl takes a while to get going.
	DefaultWarmup = 20 * time.Second

	// DefaultInterval is the fixed delay between completed fetches.
	DefaultInterval = 10 * time.Second
)

// Fetcher performs one status fetch. [StatusClient] is the production
// implementation.
type Fetcher interface {
	FetchStatus(ctx context.Context, key Key) (Snapshot, error)
}

// Timer is a cancellable pending invocation.
type Timer interface {
	Stop() bool
}

// Clock schedules delayed invocations. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SchedulerConfig configures a [Scheduler].
type SchedulerConfig struct {
	Warmup   time.Duration
	Interval time.Duration

	// Clock defaults to the wall clock.
	Clock Clock
}

// session is one polling lifecycle for one key. A session is the unit the
// lifecycle guard compares against: work scheduled by a session may only
// touch state while that session is still the scheduler's current one.
type session struct {
	id     string
	key    Key
	ctx    context.Context
	cancel context.CancelFunc
	timer  Timer

	// stopWatch detaches the observer context hook.
	stopWatch func() bool
}

// Scheduler polls one monitor key at a time.
//
// A session starts in WAITING, issues its first fetch after the warm-up
// delay, then re-fetches at a fixed interval after each completed fetch
// until every target is terminal (DONE) or a fetch fails (ERRORED). Fetches
// within a session are strictly sequential.
//
// Changing the key, clearing it, calling [Scheduler.Stop], or ending the
// observer context tears the session down: its timer is stopped and its
// in-flight fetch, if any, is cancelled and its result discarded.
//
// Every published [State] goes to the sink, which is called with the
// scheduler lock held and therefore must not block or call back into the
// scheduler.
type Scheduler struct {
	fetcher  Fetcher
	warmup   time.Duration
	interval time.Duration
	clock    Clock
	sink     func(State)
	logger   *slog.Logger

	mu      sync.Mutex
	session *session
	state   State
	closed  bool
}

// NewScheduler creates an idle [Scheduler]. A nil sink discards states.
func NewScheduler(fetcher Fetcher, cfg SchedulerConfig, sink func(State), logger *slog.Logger) *Scheduler {
	if cfg.Warmup < 0 {
		cfg.Warmup = 0
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if sink == nil {
		sink = func(State) {}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		fetcher:  fetcher,
		warmup:   cfg.Warmup,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		sink:     sink,
		logger:   logger,
		state:    idleState(cfg.Clock.Now()),
	}
}

// Start arms a session for key.
//
// An empty key tears down the current session and leaves the scheduler
// idle. Starting the key that is already being polled is a no-op; starting
// it again after the session reached DONE or ERRORED re-arms it.
//
// ctx is the observer's lifetime: when it ends the session is torn down.
// A nil ctx never ends.
func (s *Scheduler) Start(ctx context.Context, key Key) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if cur := s.session; cur != nil && cur.key.Equal(key) && !s.state.Phase.Terminal() {
		return
	}

	if s.session != nil {
		s.teardownLocked("key changed")
	}

	if key.IsZero() {
		s.publishLocked(idleState(s.clock.Now()))
		return
	}

	sessCtx, cancel := context.WithCancel(ctx)
	sess := &session{
		id:     uuid.NewString(),
		key:    key,
		ctx:    sessCtx,
		cancel: cancel,
	}
	s.session = sess

	s.publishLocked(waitingState(sess.id, key, s.clock.Now()))
	s.logger.Info("polling session started",
		"session_id", sess.id,
		"key", key.String(),
		"warmup", s.warmup.String(),
	)

	sess.timer = s.clock.AfterFunc(s.warmup, func() { s.poll(sess) })

	// registered last: for an already-done ctx the hook runs right away and
	// needs the session fully built
	sess.stopWatch = context.AfterFunc(ctx, func() { s.release(sess) })
}

// Stop tears down the current session and resets the state to idle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return
	}
	s.teardownLocked("stopped")
	s.publishLocked(idleState(s.clock.Now()))
}

// Close stops the scheduler permanently. Safe to call multiple times.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.session != nil {
		s.teardownLocked("closed")
		s.publishLocked(idleState(s.clock.Now()))
	}
}

// State returns a copy of the latest published state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// release is the observer-context hook of sess.
func (s *Scheduler) release(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != sess {
		return
	}
	s.teardownLocked("observer gone")
	s.publishLocked(idleState(s.clock.Now()))
}

// poll runs one fetch for sess and schedules the next one if needed.
func (s *Scheduler) poll(sess *session) {
	s.mu.Lock()
	if !s.currentLocked(sess) {
		s.mu.Unlock()
		return
	}
	sess.timer = nil
	if s.state.Phase == PhaseWaiting {
		next := s.state
		next.Phase = PhasePolling
		next.UpdatedAt = s.clock.Now()
		s.publishLocked(next)
	}
	s.mu.Unlock()

	start := time.Now()
	snap, err := s.fetcher.FetchStatus(sess.ctx, sess.key)
	latency := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(sess) {
		s.logger.Debug("discarding stale poll result",
			"session_id", sess.id,
			"key", sess.key.String(),
		)
		return
	}

	now := s.clock.Now()
	if err != nil {
		s.publishLocked(projectFailure(s.state, err, now))
		s.endLocked(sess)
		s.logger.Warn("poll failed, session stopped",
			"session_id", sess.id,
			"key", sess.key.String(),
			"latency_ms", latency.Milliseconds(),
			"error", err.Error(),
		)
		return
	}

	next := projectSuccess(s.state, snap, now)
	s.publishLocked(next)
	s.logger.Debug("poll completed",
		"session_id", sess.id,
		"key", sess.key.String(),
		"targets", len(snap),
		"phase", next.Phase,
		"latency_ms", latency.Milliseconds(),
	)

	if next.Phase == PhaseDone {
		s.endLocked(sess)
		s.logger.Info("polling session finished",
			"session_id", sess.id,
			"key", sess.key.String(),
			"polls", next.Polls,
		)
		return
	}

	sess.timer = s.clock.AfterFunc(s.interval, func() { s.poll(sess) })
}

// currentLocked reports whether work scheduled by sess may still run.
func (s *Scheduler) currentLocked(sess *session) bool {
	return !s.closed && s.session == sess && sess.ctx.Err() == nil
}

// endLocked releases the resources of a session that reached a terminal
// phase. The session stays current so its final state remains observable.
func (s *Scheduler) endLocked(sess *session) {
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
	if sess.stopWatch != nil {
		sess.stopWatch()
	}
	sess.cancel()
}

// teardownLocked is the single cancellation path: it stops the pending
// timer, cancels any in-flight fetch and forgets the session.
func (s *Scheduler) teardownLocked(reason string) {
	sess := s.session
	if sess == nil {
		return
	}
	s.session = nil
	s.endLocked(sess)
	s.logger.Info("polling session torn down",
		"session_id", sess.id,
		"key", sess.key.String(),
		"reason", reason,
	)
}

func (s *Scheduler) publishLocked(st State) {
	s.state = st
	s.sink(st.Clone())
}
