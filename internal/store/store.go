package store

import "time"

// TargetResult is the storage representation of one monitored target.
type TargetResult struct {
	ID         string     `json:"id"`
	SourceName string     `json:"source_name"`
	State      string     `json:"state"`
	LastRunAt  *time.Time `json:"last_run_at"`
	Message    string     `json:"message,omitempty"`
}

// StateResult is the storage representation of the observable polling
// state, optimized for JSON serialization (used by the REST API and SSE).
// It is decoupled from the poller's internal types to allow independent
// evolution.
type StateResult struct {
	// SessionID identifies the polling session that produced this state.
	// Empty while idle.
	SessionID string `json:"session_id"`

	// Key is the monitor key being polled, rendered for display.
	Key string `json:"key"`

	// Phase is one of IDLE, WAITING, POLLING, DONE, ERRORED.
	Phase string `json:"phase"`

	// Targets is the latest snapshot in the order the remote returned it.
	Targets []TargetResult `json:"targets"`

	// Active is true while polling may still produce updates.
	Active bool `json:"active"`

	// Loading is true while active and no target has been reported yet.
	Loading bool `json:"loading"`

	// Error is the last fetch error; nil when the last fetch succeeded.
	Error *string `json:"error"`

	// Polls counts completed fetches in this session.
	Polls int `json:"polls"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Store holds the current observable state and fans out changes.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows real-time updates to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Set replaces the current state and notifies all subscribers.
	Set(state StateResult)

	// Get returns the current state.
	Get() StateResult

	// Subscribe returns a channel that receives state changes.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan StateResult

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan StateResult)
}
