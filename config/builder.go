package config

import (
	"log/slog"
	"sort"

	"github.com/jpalmerr/crawlwatch"
)

// BuildOptions converts parsed configuration into SDK options.
//
// The logger, when non-nil, is passed through with [crawlwatch.WithLogger].
func BuildOptions(cfg *Config, logger *slog.Logger) []crawlwatch.Option {
	opts := []crawlwatch.Option{
		crawlwatch.WithBaseURL(cfg.APIBaseURL),
	}

	// task mode sets its own path, decoder and timings; explicit values
	// below override them
	if cfg.Mode == ModeTask {
		opts = append(opts, crawlwatch.WithTaskPolling())
	}

	if cfg.StatusPath != "" {
		opts = append(opts, crawlwatch.WithStatusPath(cfg.StatusPath))
	}

	if cfg.Warmup != nil {
		opts = append(opts, crawlwatch.WithWarmup(cfg.Warmup.Duration()))
	}

	if cfg.Interval != 0 {
		opts = append(opts, crawlwatch.WithInterval(cfg.Interval.Duration()))
	}

	if cfg.RequestTimeout != 0 {
		opts = append(opts, crawlwatch.WithRequestTimeout(cfg.RequestTimeout.Duration()))
	}

	if len(cfg.Headers) > 0 {
		opts = append(opts, crawlwatch.WithHeaders(mapToKeyValuePairs(cfg.Headers)...))
	}

	if decoder := buildDecoder(cfg.Decoder); decoder != nil {
		opts = append(opts, crawlwatch.WithDecoder(decoder))
	}

	if logger != nil {
		opts = append(opts, crawlwatch.WithLogger(logger))
	}

	return opts
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}

// buildDecoder converts DecoderConfig to a SnapshotDecoder.
// Returns nil for default/empty decoders (the SDK picks its own default).
func buildDecoder(dc DecoderConfig) crawlwatch.SnapshotDecoder {
	switch dc.Type {
	case "", "default":
		return nil
	case "list":
		return crawlwatch.ListDecoder
	case "task":
		return crawlwatch.TaskDecoder
	case "json":
		return crawlwatch.ListDecoderAt(dc.Path)
	default:
		// validation should catch this, but return nil as fallback
		return nil
	}
}
