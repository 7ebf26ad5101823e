package store

import (
	"sync"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore keeps only the latest state; every Set replaces it wholesale.
// Subscribers receive updates via buffered channels (buffer size 100).
// Updates are sent non-blocking; if a subscriber's buffer is full, the update
// is dropped for that subscriber to prevent blocking the publisher.
type MemoryStore struct {
	mu          sync.RWMutex
	current     StateResult
	subscribers map[chan StateResult]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] holding an idle state.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		current: StateResult{
			Phase:   "IDLE",
			Targets: []TargetResult{},
		},
		subscribers: make(map[chan StateResult]struct{}),
	}
}

// Set stores a [StateResult] and notifies all subscribers.
func (m *MemoryStore) Set(state StateResult) {
	state = cloneState(state)

	m.mu.Lock()
	m.current = state
	m.mu.Unlock()

	m.notifySubscribers(state)
}

// Get returns a copy of the current state.
func (m *MemoryStore) Get() StateResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneState(m.current)
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// The returned channel has a buffer of 100 messages. If the buffer fills
// (slow consumer), new updates are dropped for this subscriber.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan StateResult {
	ch := make(chan StateResult, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// After calling Unsubscribe, the channel will be closed and no further
// updates will be sent. Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan StateResult) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	// find and delete the channel (need to convert to the right type)
	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the state to all active subscribers without blocking.
func (m *MemoryStore) notifySubscribers(state StateResult) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- state:
		default:
			// subscriber is slow, drop the message
		}
	}
}

// cloneState copies the slices and pointers so readers cannot mutate the
// stored value.
func cloneState(s StateResult) StateResult {
	targets := make([]TargetResult, len(s.Targets))
	for i, t := range s.Targets {
		targets[i] = t
		if t.LastRunAt != nil {
			ts := *t.LastRunAt
			targets[i].LastRunAt = &ts
		}
	}
	s.Targets = targets
	if s.Error != nil {
		e := *s.Error
		s.Error = &e
	}
	return s
}
