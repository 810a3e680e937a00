// Package monitor exposes a read-only HTTP surface for watching a long
// harvest run: liveness, live progress counters, and Prometheus metrics.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chemview-archive/harvester/internal/harvest"
)

// Server serves the monitor endpoints.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// New builds a Server bound to addr, reading live counters from progress.
func New(addr string, progress *harvest.Progress, logger *zap.Logger) *Server {
	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/progress", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(progress.Snapshot()); err != nil {
			logger.Warn("encode progress snapshot", zap.Error(err))
		}
	})
	router.Handle("/metrics", promhttp.Handler())

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in a background goroutine. The harvest must not die because
// the monitor port is taken, so listen errors are logged, not returned.
func (s *Server) Start() {
	go func() {
		s.logger.Info("monitor listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("monitor server stopped", zap.Error(err))
		}
	}()
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("monitor shutdown", zap.Error(err))
	}
}
