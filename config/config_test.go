package config

import (
	"strings"
	"testing"
	"time"
)

func TestParse_MinimalConfig(t *testing.T) {
	yaml := `
api_base_url: http://localhost:8000/api
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// check defaults applied
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Mode != ModeList {
		t.Errorf("Mode = %q, want %q", cfg.Mode, ModeList)
	}
	if cfg.Warmup != nil {
		t.Errorf("Warmup = %v, want unset", cfg.Warmup.Duration())
	}
	if cfg.Interval != 0 {
		t.Errorf("Interval = %v, want unset", cfg.Interval.Duration())
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
title: Tokyo Crawls
port: 9090
api_base_url: https://crawler.example.com/api
mode: list
status_path: /v2/crawl-status/{key}/
warmup: 5s
interval: 30s
request_timeout: 15s
headers:
  Authorization: Bearer token123
  X-Custom: value
sources: [expedia, agoda, rakuten]
decoder: json:data.targets
log_file: /tmp/crawlwatch.log
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Title != "Tokyo Crawls" {
		t.Errorf("Title = %q, want %q", cfg.Title, "Tokyo Crawls")
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.APIBaseURL != "https://crawler.example.com/api" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.StatusPath != "/v2/crawl-status/{key}/" {
		t.Errorf("StatusPath = %q", cfg.StatusPath)
	}
	if cfg.Warmup == nil || cfg.Warmup.Duration() != 5*time.Second {
		t.Errorf("Warmup = %v, want 5s", cfg.Warmup)
	}
	if cfg.Interval.Duration() != 30*time.Second {
		t.Errorf("Interval = %v, want 30s", cfg.Interval.Duration())
	}
	if cfg.RequestTimeout.Duration() != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want 15s", cfg.RequestTimeout.Duration())
	}
	if cfg.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("Headers[Authorization] = %q, want %q", cfg.Headers["Authorization"], "Bearer token123")
	}
	if len(cfg.Sources) != 3 || cfg.Sources[2] != "rakuten" {
		t.Errorf("Sources = %v", cfg.Sources)
	}
	if cfg.Decoder.Type != "json" || cfg.Decoder.Path != "data.targets" {
		t.Errorf("Decoder = %+v, want json at data.targets", cfg.Decoder)
	}
	if cfg.LogFile != "/tmp/crawlwatch.log" {
		t.Errorf("LogFile = %q", cfg.LogFile)
	}
}

func TestParse_ZeroWarmupIsExplicit(t *testing.T) {
	yaml := `
api_base_url: http://localhost:8000/api
warmup: 0s
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Warmup == nil {
		t.Fatal("Warmup = nil, want explicit zero")
	}
	if cfg.Warmup.Duration() != 0 {
		t.Errorf("Warmup = %v, want 0", cfg.Warmup.Duration())
	}
}

func TestParse_TaskMode(t *testing.T) {
	yaml := `
api_base_url: http://localhost:8000/api
mode: task
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Mode != ModeTask {
		t.Errorf("Mode = %q, want %q", cfg.Mode, ModeTask)
	}
}

func TestParse_DecoderShorthand(t *testing.T) {
	tests := []struct {
		name     string
		decoder  string
		wantType string
		wantPath string
	}{
		{name: "default", decoder: "default", wantType: "default"},
		{name: "list", decoder: "list", wantType: "list"},
		{name: "task", decoder: "task", wantType: "task"},
		{name: "json path", decoder: "json:results", wantType: "json", wantPath: "results"},
		{name: "nested json path", decoder: "json:data.targets", wantType: "json", wantPath: "data.targets"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yaml := "api_base_url: http://localhost:8000/api\ndecoder: " + tt.decoder + "\n"
			cfg, err := Parse([]byte(yaml))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if cfg.Decoder.Type != tt.wantType {
				t.Errorf("Decoder.Type = %q, want %q", cfg.Decoder.Type, tt.wantType)
			}
			if cfg.Decoder.Path != tt.wantPath {
				t.Errorf("Decoder.Path = %q, want %q", cfg.Decoder.Path, tt.wantPath)
			}
		})
	}
}

func TestParse_DecoderStructured(t *testing.T) {
	yaml := `
api_base_url: http://localhost:8000/api
decoder:
  type: json
  path: data.targets
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Decoder.Type != "json" || cfg.Decoder.Path != "data.targets" {
		t.Errorf("Decoder = %+v, want json at data.targets", cfg.Decoder)
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_CRAWLER_URL", "https://crawler.internal/api")
	t.Setenv("TEST_CRAWLER_TOKEN", "secret123")

	yaml := `
api_base_url: ${TEST_CRAWLER_URL}
headers:
  Authorization: Bearer ${TEST_CRAWLER_TOKEN}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.APIBaseURL != "https://crawler.internal/api" {
		t.Errorf("APIBaseURL = %q, want %q", cfg.APIBaseURL, "https://crawler.internal/api")
	}
	if cfg.Headers["Authorization"] != "Bearer secret123" {
		t.Errorf("Headers[Authorization] = %q, want %q", cfg.Headers["Authorization"], "Bearer secret123")
	}
}

func TestParse_EnvVarDefault(t *testing.T) {
	yaml := `
api_base_url: ${UNSET_CRAWLER_URL_FOR_TEST:-http://localhost:8000/api}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.APIBaseURL != "http://localhost:8000/api" {
		t.Errorf("APIBaseURL = %q, want default", cfg.APIBaseURL)
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	yaml := `
api_base_url: ${UNSET_CRAWLER_URL_FOR_TEST}
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() should fail for a missing environment variable")
	}
	if !strings.Contains(err.Error(), "UNSET_CRAWLER_URL_FOR_TEST") {
		t.Errorf("error should name the variable, got: %v", err)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing base url",
			yaml:    `port: 8080`,
			wantErr: "api_base_url is required",
		},
		{
			name:    "base url without scheme",
			yaml:    `api_base_url: localhost:8000/api`,
			wantErr: "scheme must be http or https",
		},
		{
			name:    "base url with ftp scheme",
			yaml:    `api_base_url: ftp://crawler.example.com`,
			wantErr: "scheme must be http or https",
		},
		{
			name:    "base url without host",
			yaml:    `api_base_url: "http://"`,
			wantErr: "must include a host",
		},
		{
			name:    "port out of range",
			yaml:    "api_base_url: http://localhost:8000\nport: 70000",
			wantErr: "port must be between 1 and 65535",
		},
		{
			name:    "unknown mode",
			yaml:    "api_base_url: http://localhost:8000\nmode: batch",
			wantErr: "mode must be",
		},
		{
			name:    "status path without placeholder",
			yaml:    "api_base_url: http://localhost:8000\nstatus_path: /crawl-status/",
			wantErr: "must contain {key}",
		},
		{
			name:    "relative status path",
			yaml:    "api_base_url: http://localhost:8000\nstatus_path: crawl-status/{key}/",
			wantErr: "must start with /",
		},
		{
			name:    "negative warmup",
			yaml:    "api_base_url: http://localhost:8000\nwarmup: -1s",
			wantErr: "warmup cannot be negative",
		},
		{
			name:    "interval too short",
			yaml:    "api_base_url: http://localhost:8000\ninterval: 500ms",
			wantErr: "interval must be at least 1s",
		},
		{
			name:    "interval too long",
			yaml:    "api_base_url: http://localhost:8000\ninterval: 2h",
			wantErr: "interval must not exceed 1h",
		},
		{
			name:    "request timeout too short",
			yaml:    "api_base_url: http://localhost:8000\nrequest_timeout: 100ms",
			wantErr: "request_timeout must be at least 1s",
		},
		{
			name:    "negative request timeout",
			yaml:    "api_base_url: http://localhost:8000\nrequest_timeout: -5s",
			wantErr: "request_timeout cannot be negative",
		},
		{
			name:    "empty source",
			yaml:    "api_base_url: http://localhost:8000\nsources: [expedia, '']",
			wantErr: "sources[1]: source cannot be empty",
		},
		{
			name:    "duplicate source",
			yaml:    "api_base_url: http://localhost:8000\nsources: [expedia, expedia]",
			wantErr: "duplicate source",
		},
		{
			name:    "unknown decoder",
			yaml:    "api_base_url: http://localhost:8000\ndecoder: regex",
			wantErr: "unknown decoder",
		},
		{
			name:    "json decoder without path",
			yaml:    "api_base_url: http://localhost:8000\ndecoder:\n  type: json",
			wantErr: "requires a path",
		},
		{
			name:    "list decoder in task mode",
			yaml:    "api_base_url: http://localhost:8000\nmode: task\ndecoder: list",
			wantErr: "cannot be used with mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("Parse() should fail with %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParse_SourcesTrimmed(t *testing.T) {
	yaml := `
api_base_url: http://localhost:8000
sources: [" expedia ", agoda]
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Sources[0] != "expedia" {
		t.Errorf("Sources[0] = %q, want trimmed", cfg.Sources[0])
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("api_base_url: [unterminated"))
	if err == nil {
		t.Fatal("Parse() should fail for invalid YAML")
	}
	if !strings.Contains(err.Error(), "failed to parse YAML") {
		t.Errorf("error = %v, want YAML parse error", err)
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	yaml := `
api_base_url: http://localhost:8000
interval: soon
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() should fail for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %v, want invalid duration", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/crawlwatch.yaml")
	if err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("error = %v", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CW_TEST_HOST", "crawler.internal")
	t.Setenv("CW_TEST_EMPTY", "")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "no vars", input: "http://localhost", want: "http://localhost"},
		{name: "set var", input: "http://${CW_TEST_HOST}/api", want: "http://crawler.internal/api"},
		{name: "set but empty", input: "a${CW_TEST_EMPTY}b", want: "ab"},
		{name: "default used", input: "${CW_TEST_UNSET:-fallback}", want: "fallback"},
		{name: "empty default", input: "x${CW_TEST_UNSET:-}y", want: "xy"},
		{name: "default ignored when set", input: "${CW_TEST_HOST:-other}", want: "crawler.internal"},
		{name: "missing var", input: "${CW_TEST_UNSET}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnvVars(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expandEnvVars() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}
