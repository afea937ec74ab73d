// Package server exposes the operational HTTP surface: health and status
// probes, a Prometheus-style metrics endpoint, and a circuit reset hook.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/polyarb/setbot/internal/config"
	"github.com/polyarb/setbot/internal/engine"
	"github.com/polyarb/setbot/internal/metrics"
	"github.com/polyarb/setbot/internal/risk"
)

// Server is the status HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and returns a server listening on the
// configured port once Start is called.
func NewServer(cfg config.ServerConfig, eng *engine.Engine, orders *engine.OrderManager, pnl *risk.PnLTracker, sink *metrics.Sink, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		halted := eng.HaltedReason()
		writeJSON(w, http.StatusOK, map[string]any{
			"circuit_open":  halted != "",
			"halted_reason": halted,
			"positions":     eng.Positions(),
			"inventory":     eng.Inventory(),
			"pnl":           pnl.Positions(),
			"total_pnl":     pnl.TotalPnL(),
			"order_count":   len(orders.ListOrders()),
		})
	})

	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(sink.RenderText()))
	})

	mux.HandleFunc("POST /circuit/reset", func(w http.ResponseWriter, _ *http.Request) {
		eng.ResetCircuit()
		w.WriteHeader(http.StatusNoContent)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With(slog.String("component", "status_server")),
	}
}

// Start blocks serving HTTP until the server errors or is shut down.
func (s *Server) Start() error {
	s.logger.Info("status server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("status server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
