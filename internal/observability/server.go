// Package observability serves the operational endpoints: Prometheus
// metrics, liveness, and readiness.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Check reports whether one dependency is reachable. A non-nil error
// marks the process not ready.
type Check func(ctx context.Context) error

// Server exposes /metrics, /healthz, and /readyz on a dedicated port,
// away from the stage traffic.
type Server struct {
	server *http.Server
	addr   string
	checks []Check
}

// NewServer builds the observability server. Liveness is unconditional;
// readiness runs the supplied dependency checks, so a worker with a lost
// store connection drops out of rotation instead of accepting invocations
// it cannot serve.
func NewServer(addr string, checks ...Check) *Server {
	s := &Server{
		addr:   addr,
		checks: checks,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", s.handleReady)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, check := range s.checks {
		if err := check(ctx); err != nil {
			log.Warn().Err(err).Msg("Readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.addr).Msg("Starting observability HTTP server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Observability HTTP server error")
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down observability HTTP server")
	return s.server.Shutdown(ctx)
}
