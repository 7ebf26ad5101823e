// Package mockcrawler is a fake crawler API for demos and manual testing.
//
// It speaks the routes crawlwatch polls: crawls started through
// POST /crawlers/start/ stay PENDING for a random 10-30 seconds per OTA and
// then settle on SUCCESS (or, one time in five, FAILURE).
package mockcrawler

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// DefaultOTAs are crawled when a start request names none.
var DefaultOTAs = []string{"expedia", "agoda", "rakuten"}

// crawl is the lifecycle of one OTA crawl for one hotel.
type crawl struct {
	id       int
	ota      string
	finishAt time.Time
	failed   bool
	message  string
}

func (c *crawl) status(now time.Time) string {
	switch {
	case now.Before(c.finishAt):
		return "PENDING"
	case c.failed:
		return "FAILURE"
	default:
		return "SUCCESS"
	}
}

// Crawler holds the fake crawl state. Create with [New].
type Crawler struct {
	mu     sync.Mutex
	nextID int
	hotels map[string][]*crawl
	tasks  map[string][]*crawl
	now    func() time.Time
	delay  func() time.Duration
	fails  func() bool
}

// New creates an empty Crawler.
func New() *Crawler {
	return &Crawler{
		hotels: make(map[string][]*crawl),
		tasks:  make(map[string][]*crawl),
		now:    time.Now,
		delay:  func() time.Duration { return time.Duration(10+rand.Intn(21)) * time.Second },
		fails:  func() bool { return rand.Intn(5) == 0 },
	}
}

// Handler returns the crawler API routes.
func (c *Crawler) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/crawlers/start/", c.handleStart)
	r.Get("/crawl-status/{hotel}/", c.handleStatus)
	r.Get("/tasks/{id}/", c.handleTask)

	return r
}

type startRequest struct {
	Hotel struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"hotel"`
	Options struct {
		OTAs []string `json:"otas"`
	} `json:"options"`
}

func (c *Crawler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Hotel.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "hotel id is required"})
		return
	}

	otas := req.Options.OTAs
	if len(otas) == 0 {
		otas = DefaultOTAs
	}

	c.mu.Lock()
	now := c.now()
	taskID := uuid.NewString()
	started := make([]*crawl, 0, len(otas))
	for _, ota := range otas {
		c.nextID++
		cr := &crawl{
			id:       c.nextID,
			ota:      ota,
			finishAt: now.Add(c.delay()),
			failed:   c.fails(),
		}
		if cr.failed {
			cr.message = "blocked by captcha"
		}
		started = append(started, cr)
		c.hotels[req.Hotel.ID] = replaceCrawl(c.hotels[req.Hotel.ID], cr)
	}
	c.tasks[taskID] = started
	c.mu.Unlock()

	slog.Info("crawl started", "hotel_id", req.Hotel.ID, "otas", otas, "task_id", taskID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Crawl started for " + strings.Join(otas, ", "),
		"task_id": taskID,
	})
}

// replaceCrawl swaps the crawl of the same OTA, or appends a new one.
func replaceCrawl(crawls []*crawl, cr *crawl) []*crawl {
	for i, existing := range crawls {
		if existing.ota == cr.ota {
			cr.id = existing.id
			crawls[i] = cr
			return crawls
		}
	}
	return append(crawls, cr)
}

type statusRecord struct {
	ID            int        `json:"id"`
	OTAName       string     `json:"ota_name"`
	Status        string     `json:"last_crawl_status"`
	LastCrawledAt *time.Time `json:"last_crawled_at"`
	Message       string     `json:"last_crawl_message,omitempty"`
}

func (c *Crawler) handleStatus(w http.ResponseWriter, r *http.Request) {
	hotel := chi.URLParam(r, "hotel")

	var filter map[string]bool
	if raw := r.URL.Query().Get("targets"); raw != "" {
		filter = make(map[string]bool)
		for _, id := range strings.Split(raw, ",") {
			filter[id] = true
		}
	}

	c.mu.Lock()
	now := c.now()
	crawls := c.hotels[hotel]
	records := make([]statusRecord, 0, len(crawls))
	for _, cr := range crawls {
		rec := statusRecord{ID: cr.id, OTAName: cr.ota, Status: cr.status(now)}
		if rec.Status != "PENDING" {
			finished := cr.finishAt
			rec.LastCrawledAt = &finished
			rec.Message = cr.message
		}
		if filter != nil && !filter[strconv.Itoa(cr.id)] {
			continue
		}
		records = append(records, rec)
	}
	c.mu.Unlock()

	writeJSON(w, http.StatusOK, records)
}

func (c *Crawler) handleTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c.mu.Lock()
	crawls, ok := c.tasks[id]
	now := c.now()
	status, message := "SUCCESS", ""
	if ok {
		var failed []string
		for _, cr := range crawls {
			switch cr.status(now) {
			case "PENDING":
				status = "STARTED"
			case "FAILURE":
				failed = append(failed, cr.ota)
			}
		}
		if status != "STARTED" {
			message = "all OTAs crawled"
			if len(failed) > 0 {
				status = "FAILURE"
				message = "failed: " + strings.Join(failed, ", ")
			}
		}
	}
	c.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":         status,
		"result_message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
