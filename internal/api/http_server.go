package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"mobilemech/internal/config"
	"mobilemech/internal/domain"
	"mobilemech/internal/metrics"
	"mobilemech/internal/models"
	"mobilemech/internal/service"

	"github.com/rs/zerolog"
)

const (
	PathAutoCancel = "/functions/v1/auto-cancel-overdue"
	PathRuns       = "/api/v1/maintenance/runs"
	PathHealth     = "/healthz"
	PathReady      = "/readyz"

	defaultRunsLimit = 20
)

// Canceller runs one overdue sweep.
type Canceller interface {
	Run(ctx context.Context) (*service.Outcome, error)
}

// HTTPServer exposes the auto-cancel trigger and run history.
type HTTPServer struct {
	cfg       config.APIConfig
	canceller Canceller
	runs      domain.RunRepository
	logger    *zerolog.Logger
	server    *http.Server
	auth      *HTTPAuth
	ready     func(context.Context) error
}

type autoCancelResponse struct {
	Success                bool     `json:"success"`
	Message                string   `json:"message"`
	EliminatedCount        int      `json:"eliminatedCount"`
	EliminatedAppointments []string `json:"eliminatedAppointments"`
	Warnings               []string `json:"warnings,omitempty"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type runsResponse struct {
	Success bool                `json:"success"`
	Runs    []*models.RunRecord `json:"runs"`
}

// NewHTTPServer wires routes and middleware. runs may be nil, in which case
// the history endpoint reports itself unavailable.
func NewHTTPServer(cfg config.APIConfig, canceller Canceller, runs domain.RunRepository, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, canceller: canceller, runs: runs, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc(PathAutoCancel, srv.handleAutoCancel)
	mux.HandleFunc(PathRuns, srv.handleRuns)
	mux.HandleFunc(PathHealth, srv.handleHealth)
	mux.HandleFunc(PathReady, srv.handleReady)

	handler := withRequestID(accessLog(logger, withCORS(cfg.CORS, srv.auth.Wrap(mux))))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}

	return srv
}

// WithReadyCheck sets the backend check behind /readyz.
func (s *HTTPServer) WithReadyCheck(check func(context.Context) error) *HTTPServer {
	s.ready = check
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleAutoCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("auto_cancel_overdue")

	// A started sweep finishes even if the caller goes away.
	out, err := s.canceller.Run(context.WithoutCancel(r.Context()))
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("auto-cancel failed")
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, autoCancelResponse{
		Success:                true,
		Message:                out.Message(),
		EliminatedCount:        len(out.Cancelled),
		EliminatedAppointments: out.Cancelled,
		Warnings:               out.Warnings,
	})
}

func (s *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("maintenance_runs")

	if s.runs == nil {
		writeFailure(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeFailure(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*models.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runsResponse{Success: true, Runs: runs})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			writeFailure(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFailure(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, failureResponse{Success: false, Error: message})
}
