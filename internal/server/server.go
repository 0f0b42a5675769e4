// Package server exposes the HTTP control surface: status, the retained
// event log, start/stop controls, cycle history and a live event stream.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/memecoinersol82-cell/liquid-protocol/internal/bot"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/events"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/history"
)

// Controller is the slice of the bot the server drives.
type Controller interface {
	Status() bot.Status
	Start() bool
	Stop() bool
}

// Server is the HTTP server for the treasury bot.
type Server struct {
	router    *chi.Mux
	ctrl      Controller
	events    *events.Sink
	history   history.Recorder
	logger    *slog.Logger
	srv       *http.Server
	startedAt time.Time
}

// NewServer creates the HTTP server bound to bind:port.
func NewServer(
	bind string,
	port int,
	ctrl Controller,
	sink *events.Sink,
	hist history.Recorder,
	logger *slog.Logger,
) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		ctrl:      ctrl,
		events:    sink,
		history:   hist,
		logger:    logger,
		startedAt: time.Now(),
	}

	s.setupRoutes()

	s.srv = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", bind, port),
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// No write timeout: the event stream holds its connection open.
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		// 100 requests/minute per IP with a burst of 20.
		r.Use(RateLimitMiddleware(NewRateLimiter(rate.Every(time.Minute/100), 20)))
		r.Get("/status", s.handleStatus)
		r.Get("/logs", s.handleLogs)
		r.Get("/history", s.handleHistory)
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Get("/events", s.handleEventStream)
	})

	s.router.Get("/", s.handleIndex)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"service": "liquid-protocol",
		"endpoints": []string{
			"/api/status",
			"/api/logs",
			"/api/history",
			"/api/start",
			"/api/stop",
			"/api/events",
			"/healthz",
			"/metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus returns the bot's current snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	type statusResponse struct {
		bot.Status
		Uptime string `json:"uptime"`
	}

	s.writeJSON(w, http.StatusOK, statusResponse{
		Status: s.ctrl.Status(),
		Uptime: formatUptime(time.Since(s.startedAt)),
	})
}

// handleLogs returns the most recent retained events, newest last.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > 500 {
		limit = 500
	}

	entries := s.events.Recent(limit)
	if entries == nil {
		entries = []events.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// handleHistory returns recent cycle records, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > 500 {
		limit = 500
	}

	records, err := s.history.RecentCycles(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []history.CycleRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

// handleStart starts the reconciliation loop. Starting an already
// running bot is not an error.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.ctrl.Start() {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "already_running"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// handleStop stops the reconciliation loop. Stopping an already stopped
// bot is not an error.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.ctrl.Stop() {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "not_running"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleEventStream streams events via Server-Sent Events. On attach the
// client receives the current status and the retained log ring, then
// live entries as they are published.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before replaying so nothing published in between is
	// lost. An entry landing in both the replay and the subscription is
	// possible; clients dedupe on the entry id.
	ch := s.events.Subscribe()
	defer s.events.Unsubscribe(ch)

	s.sendEvent(w, events.Entry{
		ID:        uuid.NewString(),
		Kind:      events.KindStatus,
		Timestamp: time.Now().UTC(),
		Severity:  events.SeverityInfo,
		Message:   "status",
		Data:      map[string]any{"status": s.ctrl.Status()},
	})
	for _, entry := range s.events.Recent(500) {
		s.sendEvent(w, entry)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			s.sendEvent(w, entry)
			flusher.Flush()
		}
	}
}

func (s *Server) sendEvent(w http.ResponseWriter, entry events.Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Error("failed to marshal event", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// formatUptime formats a duration as uptime
func formatUptime(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
