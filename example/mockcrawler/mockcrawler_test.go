package mockcrawler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCrawler(fail bool) (*Crawler, *time.Time) {
	now := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	c := New()
	c.now = func() time.Time { return now }
	c.delay = func() time.Duration { return 10 * time.Second }
	c.fails = func() bool { return fail }
	return c, &now
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func statuses(t *testing.T, h http.Handler, path string) []statusRecord {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var records []statusRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	return records
}

func TestCrawlLifecycle(t *testing.T) {
	c, now := newTestCrawler(false)
	h := c.Handler()

	assert.Empty(t, statuses(t, h, "/crawl-status/42/"))

	rec, body := do(t, h, http.MethodPost, "/crawlers/start/", `{"hotel": {"id": "42"}, "options": {"otas": ["expedia", "agoda"]}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	taskID, _ := body["task_id"].(string)
	require.NotEmpty(t, taskID)

	records := statuses(t, h, "/crawl-status/42/")
	require.Len(t, records, 2)
	assert.Equal(t, "PENDING", records[0].Status)
	assert.Nil(t, records[0].LastCrawledAt)

	_, task := do(t, h, http.MethodGet, "/tasks/"+taskID+"/", "")
	assert.Equal(t, "STARTED", task["status"])

	*now = now.Add(11 * time.Second)

	records = statuses(t, h, "/crawl-status/42/")
	assert.Equal(t, "SUCCESS", records[0].Status)
	assert.NotNil(t, records[0].LastCrawledAt)

	_, task = do(t, h, http.MethodGet, "/tasks/"+taskID+"/", "")
	assert.Equal(t, "SUCCESS", task["status"])

	filtered := statuses(t, h, "/crawl-status/42/?targets=2")
	require.Len(t, filtered, 1)
	assert.Equal(t, "agoda", filtered[0].OTAName)
}

func TestCrawlFailure(t *testing.T) {
	c, now := newTestCrawler(true)
	h := c.Handler()

	_, body := do(t, h, http.MethodPost, "/crawlers/start/", `{"hotel": {"id": "42"}, "options": {"otas": []}}`)
	*now = now.Add(time.Minute)

	records := statuses(t, h, "/crawl-status/42/")
	require.Len(t, records, len(DefaultOTAs))
	assert.Equal(t, "FAILURE", records[0].Status)
	assert.Equal(t, "blocked by captcha", records[0].Message)

	_, task := do(t, h, http.MethodGet, "/tasks/"+body["task_id"].(string)+"/", "")
	assert.Equal(t, "FAILURE", task["status"])
	assert.Contains(t, task["result_message"], "expedia")
}

func TestRestartKeepsTargetIDs(t *testing.T) {
	c, _ := newTestCrawler(false)
	h := c.Handler()

	do(t, h, http.MethodPost, "/crawlers/start/", `{"hotel": {"id": "42"}, "options": {"otas": ["expedia"]}}`)
	do(t, h, http.MethodPost, "/crawlers/start/", `{"hotel": {"id": "42"}, "options": {"otas": ["expedia"]}}`)

	records := statuses(t, h, "/crawl-status/42/")
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].ID)
}

func TestBadRequests(t *testing.T) {
	h := New().Handler()

	rec, body := do(t, h, http.MethodPost, "/crawlers/start/", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request body", body["error"])

	rec, _ = do(t, h, http.MethodPost, "/crawlers/start/", `{"hotel": {}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, h, http.MethodGet, "/tasks/missing/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "task not found", body["error"])
}
