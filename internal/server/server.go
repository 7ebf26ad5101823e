package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jpalmerr/crawlwatch/internal/poller"
	"github.com/jpalmerr/crawlwatch/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// triggerTimeout bounds the crawl start call made on behalf of the console.
	triggerTimeout = 30 * time.Second

	maxRequestBodySize = 64 << 10

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "Crawl Console"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// WatchRequest is the body of POST /api/sessions.
type WatchRequest struct {
	Hotel   string   `json:"hotel"`
	Sources []string `json:"sources"`
	Targets []string `json:"targets"`
}

// TriggerRequest is the body of POST /api/crawls.
type TriggerRequest struct {
	HotelID   string   `json:"hotel_id"`
	HotelName string   `json:"hotel_name"`
	Sources   []string `json:"sources"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
}

// TriggerResult is the answer to POST /api/crawls.
type TriggerResult struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id,omitempty"`

	// Key is the monitor key the crawl is now watched under.
	Key string `json:"key"`
}

// Controller drives the polling session shown by the console.
type Controller interface {
	// Watch arms polling for the requested key.
	Watch(req WatchRequest) error

	// Unwatch stops polling and resets the state to idle.
	Unwatch()

	// Trigger starts a crawl and watches it.
	Trigger(ctx context.Context, req TriggerRequest) (TriggerResult, error)
}

// Server handles HTTP requests for the operator console.
//
// Routes:
//   - GET /: embedded console page
//   - GET /api/state: current polling state as JSON
//   - GET /api/sse: Server-Sent Events stream of state changes
//   - POST /api/sessions: start watching a hotel
//   - DELETE /api/sessions: stop watching
//   - POST /api/crawls: trigger a crawl and watch it
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	controller Controller
	port       int
	httpServer *http.Server
	assets     fs.FS
	title      string
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store holding the observable state
//   - ctrl: Controller for session actions (may be nil for a read-only console)
//   - port: TCP port to listen on
//   - assets: Embedded filesystem containing dashboard assets (may be nil)
//   - title: Console title (defaults to "Crawl Console" if empty)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, ctrl Controller, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	return &Server{
		store:      st,
		controller: ctrl,
		port:       port,
		assets:     assets,
		title:      title,
		logger:     logger,
	}
}

// Handler returns the console router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/sse", s.handleSSE)

		if s.controller != nil {
			r.Post("/sessions", s.handleWatch)
			r.Delete("/sessions", s.handleUnwatch)
			r.Post("/crawls", s.handleTrigger)
		}
	})

	if s.assets != nil {
		r.Get("/", s.handleDashboard)
	}

	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// handleDashboard serves the console page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleState returns the current state as JSON.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, http.StatusOK, s.store.Get())
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	var req WatchRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Hotel) == "" {
		s.writeError(w, http.StatusBadRequest, "hotel is required")
		return
	}

	if err := s.controller.Watch(req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.store.Get())
}

func (s *Server) handleUnwatch(w http.ResponseWriter, r *http.Request) {
	s.controller.Unwatch()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.HotelID) == "" {
		s.writeError(w, http.StatusBadRequest, "hotel_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), triggerTimeout)
	defer cancel()

	result, err := s.controller.Trigger(ctx, req)
	if err != nil {
		s.logger.Warn("crawl trigger failed",
			"request_id", middleware.GetReqID(r.Context()),
			"hotel_id", req.HotelID,
			"error", err.Error(),
		)
		s.writeError(w, triggerStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, result)
}

// triggerStatus maps a controller error onto an HTTP status: remote failures
// are a bad gateway, everything else is a bad request.
func triggerStatus(err error) int {
	var te *poller.TransportError
	var pe *poller.ProtocolError
	if errors.As(err, &te) || errors.As(err, &pe) {
		return http.StatusBadGateway
	}
	return http.StatusBadRequest
}

// handleSSE streams state changes via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// subscribe before reading the current state so no change is lost in between
	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	data, err := json.Marshal(s.store.Get())
	if err == nil {
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case result, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(result)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
