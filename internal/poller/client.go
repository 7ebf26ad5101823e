package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxResponseBodySize = 1 << 20 // 1MB

// a single observer polls one resource at a time, so the pool stays small
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 4
	defaultIdleConnTimeout     = 60 * time.Second // conservative: matches common ALB defaults
)

const (
	// DefaultStatusPath is the crawl-status route of the crawler API.
	DefaultStatusPath = "/crawl-status/{key}/"

	// DefaultStartPath is the route that enqueues a crawl.
	DefaultStartPath = "/crawlers/start/"

	targetsQueryParam = "targets"

	// maxErrorMessageLen caps a non-JSON error body quoted in a TransportError.
	maxErrorMessageLen = 200
)

// Decoder turns a status response body into a [Snapshot].
//
// Decoders return an error when the body does not have the expected shape;
// the client wraps it in a [ProtocolError].
type Decoder func(body []byte) (Snapshot, error)

// ClientConfig configures a [StatusClient].
type ClientConfig struct {
	// BaseURL is the crawler API root, e.g. "http://localhost:8000/api".
	BaseURL string

	// StatusPath is appended to BaseURL; "{key}" is replaced by the
	// path-escaped monitor key ID. Defaults to [DefaultStatusPath].
	StatusPath string

	// Headers are sent with every request.
	Headers map[string]string

	// Timeout bounds a single request. Zero leaves it to the transport.
	Timeout time.Duration

	// Decoder parses status bodies. Nil decodes the canonical JSON array.
	Decoder Decoder

	// HTTPClient overrides the pooled default client.
	HTTPClient *http.Client
}

// StatusClient performs single fetches against the remote job-status
// resource. It never retries and never caches; one call is one request.
type StatusClient struct {
	baseURL    string
	statusPath string
	headers    map[string]string
	timeout    time.Duration
	decoder    Decoder
	httpClient *http.Client
	logger     *slog.Logger
}

// NewStatusClient creates a [StatusClient]. The base URL is required and must
// be absolute.
func NewStatusClient(cfg ClientConfig, logger *slog.Logger) (*StatusClient, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute, got %q", cfg.BaseURL)
	}

	statusPath := cfg.StatusPath
	if statusPath == "" {
		statusPath = DefaultStatusPath
	}
	if !strings.Contains(statusPath, "{key}") {
		return nil, fmt.Errorf("status path %q must contain {key}", statusPath)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &StatusClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		statusPath: statusPath,
		headers:    cfg.Headers,
		timeout:    cfg.Timeout,
		decoder:    cfg.Decoder,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// StatusURL returns the URL FetchStatus would request for key.
func (c *StatusClient) StatusURL(key Key) string {
	u := c.baseURL + key.Path(c.statusPath)
	if len(key.Targets) > 0 {
		q := url.Values{}
		q.Set(targetsQueryParam, strings.Join(key.Targets, ","))
		u += "?" + q.Encode()
	}
	return u
}

// FetchStatus issues exactly one GET for key and decodes the body.
//
// Failures are returned as [*TransportError] or [*ProtocolError].
func (c *StatusClient) FetchStatus(ctx context.Context, key Key) (Snapshot, error) {
	target := c.StatusURL(key)

	body, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	snap, err := c.safeDecode(body)
	if err != nil {
		var pe *ProtocolError
		if errors.As(err, &pe) {
			pe.URL = target
			return nil, pe
		}
		return nil, &ProtocolError{URL: target, Reason: "unexpected response body", Err: err}
	}
	return snap, nil
}

// CrawlRequest asks the crawler API to start crawling one hotel.
type CrawlRequest struct {
	HotelID   string
	HotelName string
	Sources   []string
	StartDate string
	EndDate   string
}

// CrawlAccepted is the crawler API's answer to a [CrawlRequest].
type CrawlAccepted struct {
	Message string
	TaskID  string
}

type crawlPayload struct {
	Hotel struct {
		ID   string `json:"id"`
		Name string `json:"name,omitempty"`
	} `json:"hotel"`
	Options struct {
		OTAs        []string `json:"otas"`
		SpecifyDate bool     `json:"specifyDate"`
		StartDate   *string  `json:"startDate"`
		EndDate     *string  `json:"endDate"`
	} `json:"options"`
}

// StartCrawl posts a crawl request to the start route.
func (c *StatusClient) StartCrawl(ctx context.Context, req CrawlRequest) (CrawlAccepted, error) {
	var p crawlPayload
	p.Hotel.ID = req.HotelID
	p.Hotel.Name = req.HotelName
	p.Options.OTAs = req.Sources
	if p.Options.OTAs == nil {
		p.Options.OTAs = []string{}
	}
	if req.StartDate != "" || req.EndDate != "" {
		p.Options.SpecifyDate = true
		start, end := req.StartDate, req.EndDate
		p.Options.StartDate = &start
		p.Options.EndDate = &end
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return CrawlAccepted{}, fmt.Errorf("failed to encode crawl request: %w", err)
	}

	target := c.baseURL + DefaultStartPath
	body, err := c.do(ctx, http.MethodPost, target, payload)
	if err != nil {
		return CrawlAccepted{}, err
	}

	var resp struct {
		Message string          `json:"message"`
		TaskID  json.RawMessage `json:"task_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return CrawlAccepted{}, &ProtocolError{URL: target, Reason: "invalid crawl start response", Err: err}
	}

	return CrawlAccepted{Message: resp.Message, TaskID: rawID(resp.TaskID)}, nil
}

// do performs one request and returns the size-limited body of a 2xx answer.
func (c *StatusClient) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, &TransportError{URL: target, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: target, Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &TransportError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Message:    "failed to read response body",
			Err:        err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Message:    remoteErrorMessage(body),
		}
	}

	return body, nil
}

// safeDecode calls the decoder with panic recovery.
// A panicking decoder is reported as a protocol error carrying a correlation
// ID; the full stack is logged.
func (c *StatusClient) safeDecode(body []byte) (snap Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			c.logger.Error("decoder panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			snap = nil
			err = &ProtocolError{Reason: fmt.Sprintf("decoder panic (correlation_id: %s)", correlationID)}
		}
	}()

	if c.decoder != nil {
		return c.decoder(body)
	}
	return DecodeCanonical(body)
}

// Close releases idle connections. The client stays usable.
func (c *StatusClient) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}

// DecodeCanonical decodes a JSON array of [TargetStatus] records using the
// field names of TargetStatus itself.
func DecodeCanonical(body []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, &ProtocolError{Reason: "body is not a status list", Err: err}
	}
	if snap == nil {
		return nil, &ProtocolError{Reason: "body is null, expected a status list"}
	}
	for i, t := range snap {
		if t.ID == "" {
			return nil, &ProtocolError{Reason: fmt.Sprintf("record %d has no id", i)}
		}
		if !t.State.Valid() {
			return nil, &ProtocolError{Reason: fmt.Sprintf("record %d has unknown state %q", i, t.State)}
		}
	}
	return snap, nil
}

// remoteErrorMessage extracts the {"error": "..."} field crawler APIs send
// with failures, falling back to a trimmed body prefix.
func remoteErrorMessage(body []byte) string {
	var e struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Detail != "" {
			return e.Detail
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorMessageLen {
		cut := maxErrorMessageLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return msg
}

// rawID renders a JSON string or number as an identifier.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
