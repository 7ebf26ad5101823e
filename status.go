package crawlwatch

import "github.com/jpalmerr/crawlwatch/internal/poller"

// TargetState is the crawl state of one target.
//
// [StatePending] and [StateNeverRun] keep a session polling;
// [StateSuccess] and [StateFailure] are terminal.
type TargetState = poller.TargetState

const (
	// StatePending indicates the crawl for the target is queued or running.
	StatePending = poller.StatePending

	// StateSuccess indicates the last crawl finished successfully.
	StateSuccess = poller.StateSuccess

	// StateFailure indicates the last crawl failed.
	StateFailure = poller.StateFailure

	// StateNeverRun indicates the target has never been crawled.
	StateNeverRun = poller.StateNeverRun
)

// TargetStatus is one monitored unit, typically one OTA source of one hotel.
//
// ID is unique within a [MonitorKey] and is the stable correlation key
// across snapshots; position is not.
type TargetStatus = poller.TargetStatus

// Snapshot is the ordered collection of [TargetStatus] returned by one fetch.
//
// Snapshot.Finished reports whether the snapshot is non-empty and every
// target is terminal. An empty snapshot never finishes a session.
type Snapshot = poller.Snapshot

// Phase is the lifecycle phase of a polling session.
type Phase = poller.Phase

const (
	// PhaseIdle means no key is set and nothing is polled.
	PhaseIdle = poller.PhaseIdle

	// PhaseWaiting means a session is armed and its warm-up delay is pending.
	PhaseWaiting = poller.PhaseWaiting

	// PhasePolling means a fetch is in flight or the next one is scheduled.
	PhasePolling = poller.PhasePolling

	// PhaseDone means every target reached a terminal state.
	PhaseDone = poller.PhaseDone

	// PhaseErrored means a fetch failed and the session stopped.
	PhaseErrored = poller.PhaseErrored
)

// State is the observable state of a [Watcher].
//
// State is a value: the Snapshot it carries is a private copy. Fields:
//
//   - Snapshot: latest successful fetch, replaced wholesale on each success
//     and kept on failure
//   - Active: true exactly while polling may still produce updates
//   - Err: the last fetch error, a [*TransportError] or [*ProtocolError]
//   - Phase, SessionID, Key, Polls, UpdatedAt: bookkeeping for renderers
//
// State.Loading reports Active with an empty snapshot, which is when a
// renderer should show a loading indicator.
type State = poller.State

// TransportError reports a network failure or a non-2xx answer from the
// status resource.
type TransportError = poller.TransportError

// ProtocolError reports a response body that does not match the expected
// shape.
type ProtocolError = poller.ProtocolError

// CrawlRequest asks the crawler API to start crawling one hotel.
//
// Sources are OTA names; an empty list lets the crawler use its defaults.
// StartDate and EndDate ("2006-01-02") restrict the stay dates crawled; when
// both are empty the crawler picks its own range.
type CrawlRequest = poller.CrawlRequest

// CrawlAccepted is the crawler API's answer to a [CrawlRequest]. TaskID is
// empty when the crawler does not report one.
type CrawlAccepted = poller.CrawlAccepted
