// Package config provides YAML configuration parsing for crawlwatch.
//
// This package enables running the console or a one-shot watch as a
// standalone binary with a configuration file, as an alternative to the
// programmatic SDK approach.
//
// Example configuration:
//
//	title: Crawl Console
//	port: 8080
//	api_base_url: ${CRAWLER_API_URL:-http://localhost:8000/api}
//
//	warmup: 20s
//	interval: 10s
//	request_timeout: 15s
//
//	headers:
//	  Authorization: Bearer ${CRAWLER_TOKEN}
//
//	sources: [expedia, agoda, rakuten]
//	decoder: json:results
//	log_file: /var/log/crawlwatch.log
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// minPollInterval is the minimum allowed polling interval. It keeps a
	// typo from hammering the crawler API.
	minPollInterval = 1 * time.Second

	maxPollInterval = 1 * time.Hour

	defaultPort = 8080

	// ModeList polls the crawl-status route of a hotel.
	ModeList = "list"

	// ModeTask polls the background-task route of a triggered crawl.
	ModeTask = "task"
)

// Config is the root configuration structure for crawlwatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the console title. Defaults to "Crawl Console" if not set.
	Title string `yaml:"title"`

	// Port is the console HTTP port. Defaults to 8080.
	Port int `yaml:"port"`

	// APIBaseURL is the crawler API root, e.g. http://localhost:8000/api.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	APIBaseURL string `yaml:"api_base_url"`

	// Mode is "list" (default) or "task".
	Mode string `yaml:"mode"`

	// StatusPath overrides the status route; "{key}" is replaced by the
	// monitor key. Defaults depend on Mode.
	StatusPath string `yaml:"status_path"`

	// Warmup is the delay before the first fetch. Unset means the mode
	// default; "0s" fetches right away.
	Warmup *Duration `yaml:"warmup"`

	// Interval is the delay between fetches. Must be between 1s and 1h.
	Interval Duration `yaml:"interval"`

	// RequestTimeout bounds each request. Zero leaves it to the transport.
	RequestTimeout Duration `yaml:"request_timeout"`

	// Headers are sent with every request. Values support environment
	// variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Sources are the OTA sources watched when a command or console request
	// names none.
	Sources []string `yaml:"sources"`

	// Decoder selects how status bodies are parsed.
	Decoder DecoderConfig `yaml:"decoder"`

	// LogFile, when set, receives JSON logs with size-based rotation.
	LogFile string `yaml:"log_file"`
}

// DecoderConfig specifies how status bodies are decoded.
//
// It supports two formats in YAML:
//
// Shorthand string:
//
//	decoder: default
//	decoder: list
//	decoder: task
//	decoder: json:data.targets
//
// Structured object:
//
//	decoder:
//	  type: json
//	  path: data.targets
type DecoderConfig struct {
	// Type is the decoder type: "default", "list", "task", "json".
	Type string

	// Path is the dot-notation path of the record array (for type: json).
	Path string
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for DecoderConfig.
func (e *DecoderConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		return e.parseShorthand(s)
	}

	if node.Kind == yaml.MappingNode {
		// temporary struct to avoid infinite recursion
		var raw struct {
			Type string `yaml:"type"`
			Path string `yaml:"path"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		e.Type = raw.Type
		e.Path = raw.Path
		return nil
	}

	return fmt.Errorf("decoder must be a string or object, got %v", node.Kind)
}

// parseShorthand parses decoder shorthand syntax.
//
// Supported formats:
//   - "default" → bare array, then a "results" envelope
//   - "list" → bare array only
//   - "task" → single task object
//   - "json:path" → record array at a dot-notation path
func (e *DecoderConfig) parseShorthand(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if idx := strings.Index(s, ":"); idx != -1 {
		e.Type = s[:idx]
		if e.Type != "json" {
			return fmt.Errorf("unknown decoder type %q", e.Type)
		}
		e.Path = s[idx+1:]
		return nil
	}

	switch s {
	case "default", "list", "task":
		e.Type = s
	default:
		return fmt.Errorf("unknown decoder %q (expected 'default', 'list', 'task', or 'json:path')", s)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in api_base_url, status_path, log_file
// and header values. Defaults are applied for Port (8080) and Mode (list).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeList
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.APIBaseURL == "" {
		return errors.New("api_base_url is required")
	}
	expanded, err := expandEnvVars(c.APIBaseURL)
	if err != nil {
		return fmt.Errorf("api_base_url: %w", err)
	}
	c.APIBaseURL = expanded

	parsedURL, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return fmt.Errorf("invalid api_base_url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("api_base_url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return errors.New("api_base_url must include a host")
	}

	if c.Mode != ModeList && c.Mode != ModeTask {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeList, ModeTask, c.Mode)
	}

	if c.StatusPath != "" {
		expanded, err := expandEnvVars(c.StatusPath)
		if err != nil {
			return fmt.Errorf("status_path: %w", err)
		}
		c.StatusPath = expanded
		if !strings.HasPrefix(c.StatusPath, "/") {
			return fmt.Errorf("status_path must start with /, got %q", c.StatusPath)
		}
		if !strings.Contains(c.StatusPath, "{key}") {
			return fmt.Errorf("status_path %q must contain {key}", c.StatusPath)
		}
	}

	if c.Warmup != nil && c.Warmup.Duration() < 0 {
		return fmt.Errorf("warmup cannot be negative, got %s", c.Warmup.Duration())
	}

	if c.Interval != 0 {
		if c.Interval.Duration() < minPollInterval {
			return fmt.Errorf("interval must be at least %s, got %s", minPollInterval, c.Interval.Duration())
		}
		if c.Interval.Duration() > maxPollInterval {
			return fmt.Errorf("interval must not exceed %s, got %s", maxPollInterval, c.Interval.Duration())
		}
	}

	if c.RequestTimeout != 0 {
		if c.RequestTimeout.Duration() < 0 {
			return fmt.Errorf("request_timeout cannot be negative, got %s", c.RequestTimeout.Duration())
		}
		if c.RequestTimeout.Duration() < time.Second {
			return fmt.Errorf("request_timeout must be at least 1s if specified, got %s", c.RequestTimeout.Duration())
		}
	}

	for k, v := range c.Headers {
		if k == "" {
			return errors.New("headers: name cannot be empty")
		}
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		c.Headers[k] = expanded
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		s = strings.TrimSpace(s)
		if s == "" {
			return fmt.Errorf("sources[%d]: source cannot be empty", i)
		}
		if _, exists := seen[s]; exists {
			return fmt.Errorf("sources[%d]: duplicate source %q", i, s)
		}
		seen[s] = struct{}{}
		c.Sources[i] = s
	}

	if err := validateDecoder(&c.Decoder, c.Mode); err != nil {
		return err
	}

	if c.LogFile != "" {
		expanded, err := expandEnvVars(c.LogFile)
		if err != nil {
			return fmt.Errorf("log_file: %w", err)
		}
		c.LogFile = expanded
	}

	return nil
}

// validateDecoder validates a decoder configuration against the mode.
func validateDecoder(d *DecoderConfig, mode string) error {
	switch d.Type {
	case "", "default", "list":
	case "task":
		return nil
	case "json":
		if d.Path == "" {
			return errors.New("decoder type 'json' requires a path")
		}
	default:
		return fmt.Errorf("unknown decoder type %q", d.Type)
	}

	// list decoders cannot read a single task object
	if mode == ModeTask && (d.Type == "list" || d.Type == "json") {
		return fmt.Errorf("decoder %q cannot be used with mode %q", d.Type, ModeTask)
	}
	return nil
}
