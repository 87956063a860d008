// Package health provides the daemon's operational HTTP endpoints.
//
// Docker and Kubernetes use /healthz and /readyz to monitor the daemon's
// liveness. When the daemon is running and its transports are started,
// both return 200 OK; /readyz also reports the named status checks (such
// as the follow-up provider probe). /metrics serves Prometheus metrics.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Server is a lightweight HTTP server for health, readiness and metrics.
type Server struct {
	port    int
	ready   atomic.Bool
	metrics http.Handler // nil disables /metrics
	server  *http.Server

	mu     sync.Mutex
	checks map[string]func() any
}

// New creates a new health server. metrics may be nil.
func New(port int, metrics http.Handler) *Server {
	return &Server{port: port, metrics: metrics, checks: make(map[string]func() any)}
}

// SetReady marks the daemon as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// AddCheck registers a status report shown on /readyz under name. Checks are
// informational and never make the daemon unready.
func (s *Server) AddCheck(name string, fn func() any) {
	s.mu.Lock()
	s.checks[name] = fn
	s.mu.Unlock()
}

func (s *Server) report() map[string]any {
	s.mu.Lock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	fns := make([]func() any, len(names))
	sort.Strings(names)
	for i, name := range names {
		fns[i] = s.checks[name]
	}
	s.mu.Unlock()

	out := make(map[string]any, len(names))
	for i, name := range names {
		out[name] = fns[i]()
	}
	return out
}

// Handler builds the request multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
			return
		}
		writeStatus(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok", "checks": s.report()}
		if !s.ready.Load() {
			body["status"] = "not_ready"
			writeStatus(w, http.StatusServiceUnavailable, body)
			return
		}
		writeStatus(w, http.StatusOK, body)
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// ListenAndServe starts the health HTTP server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server listening", "port", s.port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

func writeStatus(w http.ResponseWriter, code int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
