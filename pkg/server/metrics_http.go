package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartMetricsHTTP starts a lightweight HTTP server that exposes /metrics
// in Prometheus text exposition format. It runs in the background and
// shuts down when the server context is cancelled.
//
// Bind address is :8602 by default — configurable via Config.MetricsAddr.
func (s *Server) StartMetricsHTTP() {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return // metrics endpoint disabled
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Helper for gauge/counter lines.
	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("chatwire_uptime_seconds", "Server uptime in seconds.", "gauge", uptime)

	write("chatwire_connections_active", "Current open websocket sessions.", "gauge",
		m.ActiveConnections.Load())
	write("chatwire_connections_total", "Lifetime websocket connections accepted.", "counter",
		m.TotalConnections.Load())
	write("chatwire_disconnects_total", "Total session closures.", "counter",
		m.TotalDisconnects.Load())

	write("chatwire_auth_success_total", "Successful authentication attempts.", "counter",
		m.SuccessfulAuths.Load())
	write("chatwire_auth_failed_total", "Failed authentication attempts.", "counter",
		m.FailedAuths.Load())

	write("chatwire_users_created_total", "Users registered.", "counter",
		m.UsersCreated.Load())
	write("chatwire_channels_created_total", "Channels created.", "counter",
		m.ChannelsCreated.Load())
	write("chatwire_messages_broadcast_total", "Chat messages fanned out.", "counter",
		m.MessagesBroadcast.Load())

	write("chatwire_events_broadcast_total", "Broadcast events delivered to the bus.", "counter",
		m.EventsBroadcast.Load())
	write("chatwire_deliveries_dropped_total", "Per-session deliveries dropped.", "counter",
		m.DroppedDeliveries.Load())

	write("chatwire_parse_failures_total", "Frames that failed envelope decoding.", "counter",
		m.ParseFailures.Load())
}
