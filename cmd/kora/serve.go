package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nadzzz/kora/internal/followup"
	"github.com/nadzzz/kora/internal/health"
	"github.com/nadzzz/kora/internal/transport"
	grpctransport "github.com/nadzzz/kora/internal/transport/grpc"
	httptransport "github.com/nadzzz/kora/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interview daemon",
	Long: `Run the interview daemon. The HTTP transport serves the client page at /
and the WebSocket bridge at /ws; the gRPC transport exposes the same actions
to remote consoles.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("kora starting", "version", getVersion())

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := build(cfg, false)
	if err != nil {
		return err
	}
	defer s.Close()

	var transports []transport.Transport
	if cfg.Transports.GRPC.Enabled {
		transports = append(transports, grpctransport.New(cfg.Transports.GRPC.Port))
	}
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(cfg.Transports.HTTP.Port, s.hub))
	}
	if len(transports) == 0 {
		return errors.New("no transports enabled, enable at least one in config")
	}

	healthServer := health.New(cfg.Server.HealthPort, s.metrics.Handler())
	if s.hub != nil {
		healthServer.AddCheck("client_attached", func() any { return s.hub.Attached() })
	}
	if cfg.Followup.Probe && s.credential != "" {
		probe := startProbe(ctx, s.generator, s.credential)
		healthServer.AddCheck("followup", probe)
	}
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	if s.hub != nil {
		go broadcastSnapshots(ctx, s)
	}

	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, s.dispatcher.Handle); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	healthServer.SetReady(true)
	slog.Info("kora ready",
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort)

	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")

	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("kora stopped")
	return nil
}

// broadcastSnapshots pushes the session to the attached page on every change.
func broadcastSnapshots(ctx context.Context, s *stack) {
	changed, unsubscribe := s.flow.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-changed:
			if err := s.hub.Broadcast(s.flow.Snapshot()); err != nil {
				slog.Debug("snapshot not delivered", "error", err)
			}
		}
	}
}

// startProbe checks the follow-up provider once in the background and
// returns a health check reporting the latest result.
func startProbe(ctx context.Context, gen *followup.Generator, credential string) func() any {
	var (
		mu     sync.Mutex
		result *followup.ProbeResult
	)
	go func() {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		r := gen.Probe(pctx, credential)
		if r.Reachable {
			slog.Info("follow-up provider reachable", "status", r.StatusCode, "latency", r.Latency)
		} else {
			slog.Warn("follow-up provider unreachable, local follow-ups will be used", "error", r.Error)
		}
		mu.Lock()
		result = &r
		mu.Unlock()
	}()
	return func() any {
		mu.Lock()
		defer mu.Unlock()
		if result == nil {
			return "pending"
		}
		return fmt.Sprintf("reachable=%t status=%d", result.Reachable, result.StatusCode)
	}
}
