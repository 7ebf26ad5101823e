package crawlwatch

import (
	"errors"
	"slices"
	"strings"

	"github.com/jpalmerr/crawlwatch/internal/poller"
)

// MonitorKey selects the remote resource a [Watcher] polls.
//
// The ID is embedded in the status path (a hotel id, a hotel name, or a task
// id depending on the configured path). Sources narrows the key to a set of
// OTA sources; Targets is sent to the remote as a query-encoded target
// filter. Two keys with the same ID but different sources are different
// keys: switching between them restarts polling.
//
// The zero MonitorKey is the "no key" value. Passing it to
// [Watcher.StartSession] stops polling.
//
// MonitorKey is immutable after creation via [NewMonitorKey]; getters return
// copies.
type MonitorKey struct {
	id      string
	sources []string
	targets []string
}

// NewMonitorKey creates a [MonitorKey] for id with the given options.
//
// Returns an error if id is empty or an option is invalid.
//
// Example:
//
//	key, err := crawlwatch.NewMonitorKey("42",
//	    crawlwatch.WithSources("expedia", "agoda"),
//	)
func NewMonitorKey(id string, opts ...KeyOption) (MonitorKey, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return MonitorKey{}, errors.New("monitor key id cannot be empty")
	}

	cfg := &keyConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return MonitorKey{}, err
		}
	}

	return MonitorKey{
		id:      id,
		sources: normalizeSet(cfg.sources),
		targets: normalizeSet(cfg.targets),
	}, nil
}

// ID returns the path-embedded identifier.
func (k MonitorKey) ID() string {
	return k.id
}

// Sources returns a copy of the OTA sources, sorted. Nil if unset.
func (k MonitorKey) Sources() []string {
	return slices.Clone(k.sources)
}

// Targets returns a copy of the target filter, sorted. Nil if unset.
func (k MonitorKey) Targets() []string {
	return slices.Clone(k.targets)
}

// IsZero reports whether k is the "no key" value.
func (k MonitorKey) IsZero() bool {
	return k.id == ""
}

// Equal reports whether two keys select the same resource.
func (k MonitorKey) Equal(other MonitorKey) bool {
	return k.toPoller().Equal(other.toPoller())
}

// String renders the key for logs and display.
func (k MonitorKey) String() string {
	return k.toPoller().String()
}

func (k MonitorKey) toPoller() poller.Key {
	return poller.Key{
		ID:      k.id,
		Sources: slices.Clone(k.sources),
		Targets: slices.Clone(k.targets),
	}
}

// normalizeSet sorts and de-duplicates values so that equal sets compare
// equal regardless of input order.
func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}
