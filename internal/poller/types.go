package poller

import (
	"net/url"
	"slices"
	"strings"
	"time"
)

// TargetState is the crawl state reported for a single target.
type TargetState string

const (
	StatePending  TargetState = "PENDING"
	StateSuccess  TargetState = "SUCCESS"
	StateFailure  TargetState = "FAILURE"
	StateNeverRun TargetState = "NEVER_RUN"
)

// Terminal reports whether the state ends polling for its target.
func (s TargetState) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Valid reports whether s is one of the known states.
func (s TargetState) Valid() bool {
	switch s {
	case StatePending, StateSuccess, StateFailure, StateNeverRun:
		return true
	}
	return false
}

// TargetStatus is one monitored unit, e.g. one OTA source for one hotel.
type TargetStatus struct {
	ID         string      `json:"id"`
	SourceName string      `json:"source_name"`
	State      TargetState `json:"state"`
	LastRunAt  *time.Time  `json:"last_run_at,omitempty"`
	Message    string      `json:"message,omitempty"`
}

// Snapshot is the ordered collection returned by one fetch. Order is the
// order the remote returned; IDs are the correlation key across snapshots.
type Snapshot []TargetStatus

// Finished reports whether the snapshot is non-empty and every target has
// reached a terminal state. An empty snapshot is never finished.
func (s Snapshot) Finished() bool {
	if len(s) == 0 {
		return false
	}
	for _, t := range s {
		if !t.State.Terminal() {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	cp := make(Snapshot, len(s))
	for i, t := range s {
		cp[i] = t
		if t.LastRunAt != nil {
			ts := *t.LastRunAt
			cp[i].LastRunAt = &ts
		}
	}
	return cp
}

// Phase is the lifecycle phase of the polling engine.
type Phase string

const (
	PhaseIdle    Phase = "IDLE"
	PhaseWaiting Phase = "WAITING"
	PhasePolling Phase = "POLLING"
	PhaseDone    Phase = "DONE"
	PhaseErrored Phase = "ERRORED"
)

// Terminal reports whether the phase ends a session.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseErrored
}

// Key identifies the remote resource to poll.
//
// ID is the path-embedded identifier (hotel id, hotel name or task id).
// Sources and Targets are optional sub-filters; Targets is sent as the
// query-encoded target filter.
type Key struct {
	ID      string
	Sources []string
	Targets []string
}

// IsZero reports whether the key designates nothing to poll.
func (k Key) IsZero() bool {
	return strings.TrimSpace(k.ID) == ""
}

// Equal reports whether two keys designate the same resource.
func (k Key) Equal(other Key) bool {
	return k.ID == other.ID &&
		slices.Equal(k.Sources, other.Sources) &&
		slices.Equal(k.Targets, other.Targets)
}

// String renders the key for logs.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.ID)
	if len(k.Sources) > 0 {
		b.WriteString("[")
		b.WriteString(strings.Join(k.Sources, ","))
		b.WriteString("]")
	}
	if len(k.Targets) > 0 {
		b.WriteString("?targets=")
		b.WriteString(strings.Join(k.Targets, ","))
	}
	return b.String()
}

// Path expands the template's {key} placeholder with the path-escaped ID.
func (k Key) Path(template string) string {
	return strings.ReplaceAll(template, "{key}", url.PathEscape(k.ID))
}

// State is the observable state exposed to the rendering collaborator.
type State struct {
	SessionID string    `json:"session_id,omitempty"`
	Key       string    `json:"key,omitempty"`
	Phase     Phase     `json:"phase"`
	Snapshot  Snapshot  `json:"snapshot"`
	Active    bool      `json:"active"`
	Err       error     `json:"-"`
	Polls     int       `json:"polls"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Loading reports whether the renderer should show a loading indicator.
func (s State) Loading() bool {
	return s.Active && len(s.Snapshot) == 0
}

// Clone returns a copy of the state that shares nothing mutable.
func (s State) Clone() State {
	s.Snapshot = s.Snapshot.Clone()
	return s
}
