package crawlwatch

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Valid(t *testing.T) {
	w, err := New(WithBaseURL("http://localhost:8000/api"))
	require.NoError(t, err)
	defer w.Close()

	st := w.Observe()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.False(t, st.Active)
	assert.Empty(t, st.Snapshot)
}

func TestNew_BaseURLRequired(t *testing.T) {
	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base URL is required")
}

func TestWithBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{name: "http", url: "http://localhost:8000/api"},
		{name: "https", url: "https://crawler.example.com"},
		{name: "no scheme", url: "localhost:8000", wantErr: "scheme must be http or https"},
		{name: "ftp", url: "ftp://crawler.example.com", wantErr: "scheme must be http or https"},
		{name: "no host", url: "http://", wantErr: "must include a host"},
		{name: "unparseable", url: "http://[::1", wantErr: "invalid base URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &watcherConfig{}
			err := WithBaseURL(tt.url)(cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.url, cfg.baseURL)
		})
	}
}

func TestWithStatusPath(t *testing.T) {
	cfg := &watcherConfig{}
	require.NoError(t, WithStatusPath("/hotels/{key}/status")(cfg))
	assert.Equal(t, "/hotels/{key}/status", cfg.statusPath)

	assert.Error(t, WithStatusPath("hotels/{key}")(cfg), "missing leading slash")
	assert.Error(t, WithStatusPath("/hotels/status")(cfg), "missing placeholder")
}

func TestWithTaskPolling(t *testing.T) {
	cfg := &watcherConfig{statusPath: DefaultStatusPath, warmup: DefaultWarmup, interval: DefaultInterval}
	require.NoError(t, WithTaskPolling()(cfg))

	assert.Equal(t, TaskStatusPath, cfg.statusPath)
	assert.Equal(t, 5*time.Second, cfg.warmup)
	assert.Equal(t, 5*time.Second, cfg.interval)
	require.NotNil(t, cfg.decoder)

	// later options override
	require.NoError(t, WithInterval(2*time.Second)(cfg))
	assert.Equal(t, 2*time.Second, cfg.interval)
}

func TestDurationOptions(t *testing.T) {
	cfg := &watcherConfig{}

	require.NoError(t, WithWarmup(0)(cfg))
	assert.Error(t, WithWarmup(-time.Second)(cfg))

	require.NoError(t, WithInterval(time.Second)(cfg))
	assert.Error(t, WithInterval(0)(cfg))
	assert.Error(t, WithInterval(-time.Second)(cfg))

	require.NoError(t, WithRequestTimeout(0)(cfg))
	require.NoError(t, WithRequestTimeout(3*time.Second)(cfg))
	assert.Error(t, WithRequestTimeout(-time.Second)(cfg))

	assert.Equal(t, time.Duration(0), cfg.warmup)
	assert.Equal(t, time.Second, cfg.interval)
	assert.Equal(t, 3*time.Second, cfg.requestTimeout)
}

func TestWithHeaders(t *testing.T) {
	cfg := &watcherConfig{}
	require.NoError(t, WithHeaders("Authorization", "Bearer a", "X-Team", "ops")(cfg))
	require.NoError(t, WithHeaders("Authorization", "Bearer b")(cfg))

	assert.Equal(t, map[string]string{"Authorization": "Bearer b", "X-Team": "ops"}, cfg.headers)

	err := WithHeaders("Authorization")(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "odd number")

	assert.Error(t, WithHeaders("", "value")(cfg))
}

func TestNilOptions(t *testing.T) {
	cfg := &watcherConfig{}

	assert.Error(t, WithDecoder(nil)(cfg))
	assert.Error(t, WithHTTPClient(nil)(cfg))
	assert.Error(t, WithLogger(nil)(cfg))

	require.NoError(t, WithStateCallback(nil)(cfg))
	assert.Empty(t, cfg.stateCallbacks)

	require.NoError(t, WithHTTPClient(&http.Client{})(cfg))
	require.NoError(t, WithDecoder(TaskDecoder)(cfg))
	require.NoError(t, WithStateCallback(func(State) {})(cfg))
	assert.Len(t, cfg.stateCallbacks, 1)
}

func TestNew_OptionErrorIsReturned(t *testing.T) {
	_, err := New(WithBaseURL("http://localhost:8000/api"), WithInterval(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval must be positive")
}

func TestWithLogger_Used(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	w, err := New(
		WithBaseURL("http://localhost:8000/api"),
		WithLogger(logger),
		withClock(newStepClock()),
	)
	require.NoError(t, err)
	defer w.Close()

	key, _ := NewMonitorKey("42")
	w.StartSession(context.Background(), key)

	assert.Contains(t, buf.String(), "polling session started")
}
