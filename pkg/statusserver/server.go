// Package statusserver exposes the state of a supervisor over HTTP:
// Prometheus metrics, the supervised process status and a health probe.
package statusserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/core-tools/hsu-proctree/pkg/errors"
	"github.com/core-tools/hsu-proctree/pkg/logcollection"
	"github.com/core-tools/hsu-proctree/pkg/logging"
	"github.com/core-tools/hsu-proctree/pkg/metrics"
)

// Status describes the supervised process
type Status struct {
	ProcessID string               `json:"process_id"`
	State     string               `json:"state"`
	PID       int                  `json:"pid,omitempty"`
	StartedAt *time.Time           `json:"started_at,omitempty"`
	ExitCode  *int                 `json:"exit_code,omitempty"`
	Logs      *logcollection.Stats `json:"logs,omitempty"`

	// Unreaped is set when the process was stopped but its exit was never
	// collected; PID then names a process that may still be alive
	Unreaped bool `json:"unreaped,omitempty"`
}

// StatusProvider reports the current status
type StatusProvider interface {
	Status() Status
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// ErrorResponse is returned for failed requests
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Server is the HTTP server for supervisor status
type Server struct {
	provider  StatusProvider
	listener  net.Listener
	server    *http.Server
	startedAt time.Time
	logger    logging.Logger
}

// NewServer creates a status server listening on address
func NewServer(address string, provider StatusProvider, logger logging.Logger) (*Server, error) {
	if provider == nil {
		return nil, errors.NewValidationError("status provider is required", nil)
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	transport, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	listener, err := CreateListener(transport)
	if err != nil {
		return nil, err
	}

	s := &Server{
		provider:  provider,
		listener:  listener,
		startedAt: time.Now(),
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/health", s.handleHealth)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s, nil
}

// Start serves requests in the background
func (s *Server) Start() {
	s.logger.Infof("Starting status server on %s", s.GetAddress())

	go func() {
		if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Status server error: %v", err)
		}
	}()
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Infof("Stopping status server")

	if err := s.server.Shutdown(ctx); err != nil {
		return errors.NewInternalError("status server shutdown failed", err)
	}
	return nil
}

// GetAddress returns the server's listen address
func (s *Server) GetAddress() string {
	return GetListenerAddress(s.listener)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.sendSuccess(w, s.provider.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.sendSuccess(w, HealthResponse{
		Status: "healthy",
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) sendSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Success: false, Error: message}); err != nil {
		s.logger.Errorf("Failed to encode error response: %v", err)
	}

	s.logger.Warnf("Request error: %s (status: %d)", message, statusCode)
}
