// Package server implements the ChatWire websocket hub: session lifecycle,
// operation dispatch, and ordered broadcast fan-out.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/chatwire/pkg/datastore"
	"github.com/NicolasHaas/chatwire/pkg/token"
)

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Gateway and will Close() it on shutdown.
type Dependencies struct {
	Gateway datastore.Gateway
}

// Server is the main ChatWire server.
type Server struct {
	cfg      Config
	gateway  datastore.Gateway
	registry *Registry
	bus      *Bus
	router   *Router
	policy   Policy
	metrics  *Metrics
	upgrader websocket.Upgrader
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	metrics := NewMetrics()
	registry := NewRegistry()
	tokens := token.NewService(cfg.Secret, cfg.TokenTTL)

	var policy Policy = Permissive{}
	if cfg.StrictValidation {
		policy = NewRulePolicy()
	}

	return &Server{
		cfg:      cfg,
		gateway:  deps.Gateway,
		registry: registry,
		bus:      NewBus(registry, metrics, cfg.BusBuffer),
		router:   NewRouter(deps.Gateway, tokens, metrics, cfg.DefaultServerID, cfg.GatewayTimeout),
		policy:   policy,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin checks belong to a fronting proxy; the hub accepts any.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Registry returns the open-session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// handleWS upgrades an HTTP request to a websocket and runs its session
// until the socket closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	slog.Debug("session connected", "remote", conn.RemoteAddr())

	sess := newSession(s, conn)
	sess.run()
}
