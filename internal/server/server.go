// Package server exposes the matching engine to the rendering layer over
// HTTP.
//
// The host UI owns all visual presentation and the platform speech API; this
// server only hands out read-only state snapshots, accepts the UI's mutation
// requests, and terminates the WebSocket recognizer feed:
//
//	GET  /v1/state               — controller snapshot
//	GET  /v1/catalog             — the full category catalog
//	POST /v1/listen/start        — open a voice turn
//	POST /v1/listen/stop         — cancel the voice turn
//	POST /v1/query               — update the typed-search text
//	POST /v1/selection/toggle    — flip one category
//	POST /v1/selection/clear     — empty the selection
//	POST /v1/selection/continue  — handoff: returns and clears the selection
//	GET  /ws/recognizer          — platform recognizer event feed
//	GET  /healthz, /readyz       — probes
//	GET  /metrics                — Prometheus scrape endpoint
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okarinen/voicepick/internal/health"
	"github.com/okarinen/voicepick/internal/observe"
	"github.com/okarinen/voicepick/internal/search"
	"github.com/okarinen/voicepick/pkg/recognizer"
	"github.com/okarinen/voicepick/pkg/recognizer/wsfeed"
)

// Server wires the search controller and recognizer feed into HTTP handlers.
type Server struct {
	controller *search.Controller
	feed       *wsfeed.Provider
	metrics    *observe.Metrics
}

// Config holds the collaborators for a [Server].
type Config struct {
	// Controller is the search composition root. Required. The catalog is
	// always read through it so hot reloads are visible immediately.
	Controller *search.Controller

	// Feed is the WebSocket recognizer provider; nil disables /ws/recognizer.
	Feed *wsfeed.Provider

	// Metrics receives HTTP metrics. Nil selects [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// New creates a Server from cfg.
func New(cfg Config) *Server {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Server{
		controller: cfg.Controller,
		feed:       cfg.Feed,
		metrics:    metrics,
	}
}

// Handler returns the engine's HTTP handler with observability middleware
// applied to the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/state", s.handleState)
	mux.HandleFunc("GET /v1/catalog", s.handleCatalog)
	mux.HandleFunc("POST /v1/listen/start", s.handleListenStart)
	mux.HandleFunc("POST /v1/listen/stop", s.handleListenStop)
	mux.HandleFunc("POST /v1/query", s.handleQuery)
	mux.HandleFunc("POST /v1/selection/toggle", s.handleToggle)
	mux.HandleFunc("POST /v1/selection/clear", s.handleClear)
	mux.HandleFunc("POST /v1/selection/continue", s.handleContinue)

	if s.feed != nil {
		mux.HandleFunc("GET /ws/recognizer", s.handleRecognizerFeed)
	}

	hh := health.New(s.checkers()...)
	mux.HandleFunc("GET /healthz", hh.Healthz)
	mux.HandleFunc("GET /readyz", hh.Readyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// checkers builds the readiness checks for this deployment.
func (s *Server) checkers() []health.Checker {
	checks := []health.Checker{
		{
			Name: "catalog",
			Check: func(context.Context) error {
				if s.controller.Catalog().Len() == 0 {
					return errors.New("catalog is empty")
				}
				return nil
			},
		},
	}
	if s.feed != nil {
		checks = append(checks, health.Checker{
			Name: "recognizer",
			Check: func(context.Context) error {
				if !s.feed.Supported() {
					return errors.New("no recognizer feed attached")
				}
				return nil
			},
		})
	}
	return checks
}

// handleState serves the controller snapshot.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

// handleCatalog serves the full catalog in order.
func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": s.controller.Catalog().Records()})
}

// handleListenStart opens a voice turn. An unsupported recognizer yields 409
// with the flash message already visible in the snapshot.
func (s *Server) handleListenStart(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.StartListening(r.Context()); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, recognizer.ErrUnsupported) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

// handleListenStop cancels the voice turn.
func (s *Server) handleListenStop(w http.ResponseWriter, _ *http.Request) {
	s.controller.StopListening()
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

// queryRequest is the JSON body for /v1/query.
type queryRequest struct {
	Query string `json:"query"`
}

// handleQuery updates the typed-search text.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.controller.SetQuery(req.Query)
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

// toggleRequest is the JSON body for /v1/selection/toggle.
type toggleRequest struct {
	ID string `json:"id"`
}

// handleToggle flips one category selection.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := s.controller.ToggleCategory(req.ID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

// handleClear empties the selection and cancels any voice turn.
func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.controller.ClearSelection()
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

// continueResponse is the handoff payload for the next screen.
type continueResponse struct {
	IDs []string `json:"ids"`
}

// handleContinue returns the accumulated selection and resets the engine.
func (s *Server) handleContinue(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, continueResponse{IDs: s.controller.Continue()})
}

// handleRecognizerFeed upgrades the request and attaches it as the platform
// recognizer feed. A second concurrent feed is refused with 409 before the
// upgrade.
func (s *Server) handleRecognizerFeed(w http.ResponseWriter, r *http.Request) {
	if s.feed.Supported() {
		writeError(w, http.StatusConflict, "a recognizer feed is already attached")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("server: recognizer feed upgrade failed", "err", err)
		return
	}

	// The controller must not keep listening for a microphone that just
	// vanished.
	defer s.controller.StopListening()

	if err := s.feed.Attach(r.Context(), conn); err != nil {
		if errors.Is(err, wsfeed.ErrFeedAttached) {
			conn.Close(websocket.StatusPolicyViolation, "feed already attached")
			return
		}
		// Normal disconnects land here too; Attach already logged.
		conn.Close(websocket.StatusNormalClosure, "feed closed")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("server: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
