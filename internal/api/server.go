package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hitherto/hitherto/internal/orchestrator"
	"github.com/hitherto/hitherto/internal/signal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server exposes the operator surface: health, status, manual cycle trigger,
// the halting controls, and Prometheus metrics.
type Server struct {
	orch *orchestrator.Orchestrator
	log  zerolog.Logger
	http *http.Server
}

func NewServer(addr string, orch *orchestrator.Orchestrator, log zerolog.Logger) *Server {
	s := &Server{
		orch: orch,
		log:  log.With().Str("component", "api").Logger(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/cycle", s.handleCycle).Methods(http.MethodPost)
	r.HandleFunc("/override", s.handleOverride).Methods(http.MethodPost)
	r.HandleFunc("/killswitch/{action:activate|deactivate}", s.handleKillSwitch).Methods(http.MethodPost)
	r.HandleFunc("/breaker/{action:activate|deactivate}", s.handleBreaker).Methods(http.MethodPost)
	r.HandleFunc("/regime/confirm", s.handleRegimeConfirm).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("api listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.orch.Status())
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	res, err := s.orch.RunCycle(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

type overrideRequest struct {
	TargetModule string `json:"target_module"`
	Command      string `json:"command"`
	Reason       string `json:"reason"`
}

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	ov := signal.Override{
		TargetModule: req.TargetModule,
		Command:      signal.OverrideCommand(req.Command),
		Reason:       req.Reason,
		IssuedAt:     time.Now().UTC(),
	}
	if err := s.orch.PostOverride(r.Context(), ov); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleKillSwitch(w http.ResponseWriter, r *http.Request) {
	if mux.Vars(r)["action"] == "activate" {
		var req reasonRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Reason == "" {
			req.Reason = "manual"
		}
		s.orch.ActivateKillSwitch(req.Reason)
	} else {
		s.orch.DeactivateKillSwitch()
	}
	s.writeJSON(w, http.StatusOK, s.orch.Status())
}

func (s *Server) handleBreaker(w http.ResponseWriter, r *http.Request) {
	if mux.Vars(r)["action"] == "activate" {
		var req reasonRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Reason == "" {
			req.Reason = "manual"
		}
		s.orch.ActivateCircuitBreaker(req.Reason)
	} else {
		s.orch.DeactivateCircuitBreaker()
	}
	s.writeJSON(w, http.StatusOK, s.orch.Status())
}

func (s *Server) handleRegimeConfirm(w http.ResponseWriter, r *http.Request) {
	st, err := s.orch.ConfirmPendingRegime(r.Context())
	if err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}
