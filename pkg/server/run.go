package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NicolasHaas/chatwire/pkg/datastore"
)

// Run starts the server and blocks until shutdown signal.
func (s *Server) Run() error {
	if s.gateway == nil {
		return fmt.Errorf("server: missing gateway dependency")
	}
	if s.cfg.Secret == "" {
		return fmt.Errorf("server: missing token secret")
	}
	defer func() { _ = s.gateway.Close() }()

	// Seed the initial server, default channel, and admin account.
	seedCfg := datastore.DefaultSeedConfig()
	seedCfg.AdminUser = s.cfg.AdminUser
	seedCfg.AdminPassword = s.cfg.AdminPassword
	if store, ok := s.gateway.(*datastore.Store); ok {
		serverID, err := store.Seed(s.ctx, seedCfg)
		if err != nil {
			return fmt.Errorf("server: seed: %w", err)
		}
		if s.cfg.DefaultServerID == 0 {
			s.cfg.DefaultServerID = serverID
		}
	}

	// Load channels from YAML config if provided
	if s.cfg.ChannelsFile != "" {
		if err := LoadChannelsFromYAML(s.ctx, s.cfg.ChannelsFile, s.gateway, s.cfg.DefaultServerID); err != nil {
			slog.Error("failed to load channels config", "err", err)
		}
	}

	// Single consumer keeps broadcast order.
	go s.bus.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	httpSrv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("ChatWire server running", "listen", s.cfg.ListenAddr)

	// Start Prometheus metrics HTTP endpoint
	s.StartMetricsHTTP()

	// Start periodic metrics logging (every 60s)
	s.metrics.StartPeriodicLog(60*time.Second, s.ctx.Done())

	// Wait for shutdown signal or listener failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		slog.Error("listener failed", "err", err)
		s.Shutdown(httpSrv)
		return fmt.Errorf("server: listen: %w", err)
	}

	slog.Info("shutting down...")
	s.Shutdown(httpSrv)
	return nil
}

// Shutdown gracefully stops the server: no new connections, sessions closed,
// broadcast queue drained.
func (s *Server) Shutdown(httpSrv *http.Server) {
	s.cancel()

	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(ctx)
	}

	for _, sess := range s.registry.Snapshot() {
		sess.Close()
	}

	s.bus.Close()
}
