// Package api is the HTTP control surface of the pulse extractor service.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/planes"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/ppg"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/sink"
)

// Session is the measurement session owner, normally a *ppg.Pipeline
type Session interface {
	Reset()
	SessionID() string
}

// Recorder controls the CSV recorder
type Recorder interface {
	Start() error
	Stop() error
	IsRecording() bool
	Status() sink.RecordingStatus
}

// Server serves the control endpoints
type Server struct {
	session   Session
	recorder  Recorder
	params    *ppg.ParamStore
	buffer    *sink.Buffer
	stream    *sink.Broadcaster
	onSession func(id string)
	origin    string
}

// Option configures a Server
type Option func(*Server)

// WithBuffer exposes the latest points in /status
func WithBuffer(b *sink.Buffer) Option {
	return func(s *Server) { s.buffer = b }
}

// WithStream serves the live point stream on /stream
func WithStream(b *sink.Broadcaster) Option {
	return func(s *Server) { s.stream = b }
}

// OnSessionChange is called with the new id after every restart
func OnSessionChange(f func(id string)) Option {
	return func(s *Server) { s.onSession = f }
}

// WithAllowedOrigin sets the CORS origin
func WithAllowedOrigin(origin string) Option {
	return func(s *Server) { s.origin = origin }
}

// NewServer creates a Server
func NewServer(session Session, recorder Recorder, params *ppg.ParamStore, opts ...Option) *Server {
	s := &Server{
		session:  session,
		recorder: recorder,
		params:   params,
		origin:   "http://localhost:8080",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/session/restart", s.cors(s.handleRestart))
	mux.HandleFunc("/record/start", s.cors(s.handleStartRecording))
	mux.HandleFunc("/record/stop", s.cors(s.handleStopRecording))
	mux.HandleFunc("/params", s.cors(s.handleParams))
	mux.HandleFunc("/status", s.cors(s.handleStatus))
	mux.HandleFunc("/stream", s.cors(s.handleStream))
	mux.HandleFunc("/health", s.handleHealth)

	return mux
}

func (s *Server) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("API", "Response encoding failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

func requireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

// handleRestart starts a new measurement session
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	s.session.Reset()
	if s.buffer != nil {
		s.buffer.Reset()
	}
	id := s.session.SessionID()
	if s.stream != nil {
		s.stream.SetSession(id)
	}
	if s.onSession != nil {
		s.onSession(id)
	}
	logger.Info("API", "Session restarted: %s", id)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"session": id,
	})
}

func recorderStatusCode(err error) int {
	if errors.Is(err, sink.ErrAlreadyRecording) || errors.Is(err, sink.ErrNotRecording) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// handleStartRecording handles start recording request
func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.recorder.Start(); err != nil {
		writeError(w, recorderStatusCode(err), fmt.Errorf("failed to start recording: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  s.recorder.Status(),
	})
}

// handleStopRecording handles stop recording request
func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.recorder.Stop(); err != nil {
		writeError(w, recorderStatusCode(err), fmt.Errorf("failed to stop recording: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  s.recorder.Status(),
	})
}

// handleParams returns or replaces the live pipeline parameters. PUT bodies are
// merged over the current values, so partial updates are allowed.
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet, http.MethodPut, http.MethodPost) {
		return
	}

	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, s.params.Load())
		return
	}

	p := s.params.Load()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid params: %w", err))
		return
	}
	stored := s.params.Store(p)
	logger.Info("API", "Params updated: mode=%s channel=%s blend=%s torch=%v roi=%.2f grid=%d step=%d",
		stored.Mode, stored.Channel, stored.Blend, stored.Torch, stored.ROI, stored.Grid, stored.Step)

	writeJSON(w, http.StatusOK, stored)
}

// handleStatus reports session, recorder and output state
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"session":   s.session.SessionID(),
		"recording": s.recorder.Status(),
		"params":    s.params.Load(),
	}
	if s.buffer != nil {
		frames, samples := s.buffer.Counts()
		status["frames"] = frames
		status["samples"] = samples
		if p, ok := s.buffer.Latest(); ok {
			status["latest"] = p
		}
		if r.URL.Query().Get("history") != "" {
			status["history"] = s.buffer.Snapshot()
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// handleHealth handles health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"session":     s.session.SessionID(),
		"recording":   s.recorder.IsRecording(),
		"accelerated": planes.Available(),
	})
}
