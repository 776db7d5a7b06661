// Package server provides the HTTP surface of the photo booth.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/photobooth/internal/booth"
	"github.com/ayusman/photobooth/internal/server/api"
	"github.com/ayusman/photobooth/internal/store"
)

// Source is the running booth as seen by HTTP handlers.
type Source interface {
	LatestJPEG() ([]byte, error)
	Status() booth.Status
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Source    Source
	Captures  store.CaptureStore

	// StreamInterval paces MJPEG parts; StatusPoll paces WebSocket pushes.
	StreamInterval time.Duration
	StatusPoll     time.Duration
}

// Server represents the HTTP server for the booth.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	stream *StreamHandler
	hub    *StatusHub
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.StreamInterval <= 0 {
		config.StreamInterval = DefaultStreamInterval
	}
	if config.StatusPoll <= 0 {
		config.StatusPoll = DefaultStatusPoll
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Source != nil {
		s.stream = NewStreamHandler(s.config.Source, s.config.StreamInterval)
		s.mux.Handle("/video_feed", s.stream)
		s.mux.Handle("/api/stream", s.stream)

		s.mux.HandleFunc("/status", s.handleStatus)
		s.mux.HandleFunc("/api/status", s.handleStatus)

		s.hub = NewStatusHub(s.config.Source, s.config.StatusPoll)
		s.mux.Handle("/api/ws/status", s.hub)
	}

	captures := api.NewCapturesHandler(s.config.Captures)
	s.mux.Handle("/api/captures", captures)
	s.mux.Handle("/api/captures/", captures)

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close ends open MJPEG streams, stops the status broadcaster and
// disconnects its clients. Call it before http.Server.Shutdown, which waits
// for those long-lived responses.
func (s *Server) Close() {
	if s.stream != nil {
		s.stream.Close()
	}
	if s.hub != nil {
		s.hub.Close()
	}
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}

	writeJSON(w, response)
}

// handleStatus handles GET /status with the current booth snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, s.config.Source.Status())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
