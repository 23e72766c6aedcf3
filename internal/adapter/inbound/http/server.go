// Package http serves the operator-facing /metrics and /healthz
// endpoints alongside the agent proxy's Unix socket. It never sees agent
// protocol traffic.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	stdhttp "net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthResponse is the JSON response body of the /healthz endpoint.
type HealthResponse struct {
	Status        string `json:"status"`
	Goroutines    int    `json:"goroutines"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Server serves /metrics (Prometheus) and /healthz for operators. It is
// entirely separate from the agent protocol's Unix socket listener.
type Server struct {
	addr      string
	startedAt time.Time
	server    *stdhttp.Server
}

// NewServer constructs a Server bound to addr, exposing reg's registered
// collectors at /metrics.
func NewServer(addr string, reg *prometheus.Registry) *Server {
	s := &Server{addr: addr, startedAt: time.Now()}

	mux := stdhttp.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.handleHealth)

	s.server = &stdhttp.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

func (s *Server) handleHealth(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(stdhttp.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// Run starts the server and blocks until ctx is cancelled, then shuts it
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
