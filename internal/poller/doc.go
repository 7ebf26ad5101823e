// Package poller provides the job-status polling engine for crawlwatch.
//
// This package is internal to crawlwatch and tracks one remote crawl job
// until it reaches a terminal state. The main components are:
//
//   - [StatusClient]: single-shot HTTP fetch of a status resource
//   - [Scheduler]: warm-up / fixed-interval / stop policy for one session at a time,
//     with a lifecycle guard that discards work from superseded sessions
//   - [State]: the observable state published after every transition
//   - [TransportError], [ProtocolError]: the two ways a fetch can fail
//
// Users of the crawlwatch library should not need to interact with this
// package directly. Configuration is done through the main crawlwatch package.
package poller
