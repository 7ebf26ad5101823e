package crawlwatch

import (
	"errors"
	"strings"
)

// keyConfig holds mutable state during key construction.
type keyConfig struct {
	sources []string
	targets []string
}

// KeyOption is a function that configures a [MonitorKey] during construction.
//
// Built-in options: [WithSources], [WithTargets].
type KeyOption func(*keyConfig) error

// WithSources narrows the key to the given OTA sources (e.g. "expedia",
// "agoda", "rakuten").
//
// Sources are part of the key's identity: a watcher restarts polling when
// the selected sources change. Order and duplicates do not matter.
//
// Returns an error if a source is empty.
func WithSources(sources ...string) KeyOption {
	return func(cfg *keyConfig) error {
		for _, s := range sources {
			s = strings.TrimSpace(s)
			if s == "" {
				return errors.New("source cannot be empty")
			}
			cfg.sources = append(cfg.sources, s)
		}
		return nil
	}
}

// WithTargets restricts the remote answer to the given target ids.
//
// The ids are sent as a comma-separated "targets" query parameter.
//
// Returns an error if a target id is empty or contains a comma.
func WithTargets(ids ...string) KeyOption {
	return func(cfg *keyConfig) error {
		for _, id := range ids {
			id = strings.TrimSpace(id)
			if id == "" {
				return errors.New("target id cannot be empty")
			}
			if strings.Contains(id, ",") {
				return errors.New("target id cannot contain a comma")
			}
			cfg.targets = append(cfg.targets, id)
		}
		return nil
	}
}
