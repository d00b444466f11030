// Package http is the core's network surface: the /healthz and /readyz
// probes plus the JSON API the game servers call for gains, rank lookups,
// and verification.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberhollow/emberhollow-core/pkg/circuitbreaker"
	"github.com/emberhollow/emberhollow-core/pkg/logger"
)

// HealthSource answers the readiness questions.
type HealthSource interface {
	// Healthy is the monitor's last observed storage liveness.
	Healthy() bool
}

// GatewayStats exposes gateway internals for the readiness payload.
type GatewayStats interface {
	BreakerState() circuitbreaker.State

	// Stat reports pool usage; nil when the pool is unavailable.
	Stat() *pgxpool.Stat
}

// Config holds server settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the health endpoints.
type Server struct {
	srv     *http.Server
	health  HealthSource
	gateway GatewayStats
	log     *slog.Logger
	version string
	cfg     Config
}

// NewServer creates the server. It does not listen until Start. api may be
// nil for a health-only instance.
func NewServer(cfg Config, health HealthSource, gateway GatewayStats, api *API, log *slog.Logger, version string) *Server {
	s := &Server{
		health:  health,
		gateway: gateway,
		log:     log,
		version: version,
		cfg:     cfg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	if api != nil {
		api.register(mux)
	}

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start listens in a new goroutine and reports fatal listen errors on the
// returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", slog.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

// handleHealthz reports process liveness: reachable means alive.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleReadyz reports whether the core can serve traffic: storage observed
// healthy and the gateway circuit not open.
func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	breaker := s.gateway.BreakerState()
	ready := s.health.Healthy() && breaker != circuitbreaker.StateOpen

	status := http.StatusOK
	verdict := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		verdict = "not ready"
	}

	payload := map[string]any{
		"status":          verdict,
		"storage_healthy": s.health.Healthy(),
		"breaker":         breaker.String(),
	}
	if stat := s.gateway.Stat(); stat != nil {
		payload["pool_total"] = stat.TotalConns()
		payload["pool_idle"] = stat.IdleConns()
		payload["pool_acquired"] = stat.AcquiredConns()
	}
	s.writeJSON(w, status, payload)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("health response write failed", logger.Err(err))
	}
}
