package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/chatwire/pkg/model"
	"github.com/NicolasHaas/chatwire/pkg/protocol"
)

// Session lifecycle states.
const (
	stateConnecting int32 = iota
	stateOpen
	stateClosing
	stateClosed
)

// closeFrame is the literal text frame that requests a clean disconnect.
const closeFrame = "close"

// defaultLocale is the locale every session starts with.
const defaultLocale = "en"

// Session owns exactly one websocket. Its read loop converts raw frames to
// operation envelopes and hands them to the router; all writes to the socket
// go through the buffered send channel consumed by a single write loop, so
// direct replies and broadcast deliveries never interleave partial frames.
type Session struct {
	conn       *websocket.Conn
	server     *Server
	send       chan []byte
	state      atomic.Int32
	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
	remoteAddr string

	mu     sync.Mutex // guards locale and user
	locale string
	user   *model.User
}

// newSession creates a session in the Connecting state.
func newSession(srv *Server, conn *websocket.Conn) *Session {
	ctx, cancel := context.WithCancel(srv.ctx)
	s := &Session{
		conn:   conn,
		server: srv,
		send:   make(chan []byte, srv.cfg.SendBuffer),
		ctx:    ctx,
		cancel: cancel,
		locale: defaultLocale,
	}
	if conn != nil {
		s.remoteAddr = conn.RemoteAddr().String()
	}
	return s
}

// run registers the session, transitions it to Open, and pumps frames until
// the socket closes. Blocks until the read loop exits.
func (s *Session) run() {
	s.server.registry.Add(s)
	s.state.Store(stateOpen)

	go s.writePump()
	s.readPump()
}

// Locale returns the session-local locale.
func (s *Session) Locale() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locale
}

// SetLocale mutates the session-local locale. No side effects beyond this
// session.
func (s *Session) SetLocale(locale string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locale = locale
}

// User returns the authenticated user, or nil before login.
func (s *Session) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// SetUser attaches the authenticated user to the session.
func (s *Session) SetUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// open reports whether the session is accepting deliveries.
func (s *Session) open() bool {
	return s.state.Load() == stateOpen
}

// readPump consumes frames while the session is Open. Transport errors
// terminate only this session; a clean "close" frame does the same minus
// the error log.
func (s *Session) readPump() {
	defer s.shutdown()

	s.conn.SetReadLimit(protocol.MaxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.server.cfg.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.server.cfg.ReadTimeout))
	})

	for {
		msgType, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("websocket read failed", "remote", s.remoteAddr, "err", err)
			} else {
				slog.Debug("websocket closed", "remote", s.remoteAddr, "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if string(frame) == closeFrame {
			slog.Debug("client requested close", "remote", s.remoteAddr)
			return
		}
		s.handleFrame(frame)
	}
}

// handleFrame parses one text frame and dispatches it. Parse and validation
// failures reply on this session and leave it Open.
func (s *Session) handleFrame(frame []byte) {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		s.server.metrics.ParseFailures.Add(1)
		slog.Debug("invalid frame", "remote", s.remoteAddr, "err", err)
		s.reply(protocol.Fail("invalid msg"))
		return
	}

	if !s.server.policy.Allow(req.Operation, req.Data) {
		slog.Debug("payload rejected by policy", "remote", s.remoteAddr, "op", req.Operation)
		s.reply(protocol.Fail("unknown operation or invalid data"))
		return
	}

	resp, event := s.server.router.Dispatch(s.ctx, s, req)
	if event != nil {
		s.server.bus.Publish(event)
	}
	s.reply(resp)
}

// reply encodes a direct reply and queues it on this session's socket.
func (s *Session) reply(r *protocol.Reply) {
	frame, err := r.Encode()
	if err != nil {
		slog.Error("reply encode failed", "remote", s.remoteAddr, "op", r.Op, "err", err)
		return
	}
	s.deliver(frame)
}

// deliver queues an encoded frame for the write loop. Returns false when the
// session is not Open or its send buffer is full; the frame is then dropped.
func (s *Session) deliver(frame []byte) bool {
	if !s.open() {
		return false
	}
	select {
	case s.send <- frame:
		return true
	case <-s.ctx.Done():
		return false
	default:
		slog.Warn("send buffer full, dropping frame", "remote", s.remoteAddr)
		return false
	}
}

// writePump is the single writer for this session's socket. It drains the
// send queue and keeps the connection alive with pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval(s.server.cfg.ReadTimeout))
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.server.cfg.WriteTimeout))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.server.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Debug("websocket write failed", "remote", s.remoteAddr, "err", err)
				s.cancel()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.server.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				return
			}
		}
	}
}

// shutdown transitions Open→Closing→Closed: cancels this session's pumps,
// closes the transport, and deregisters. Idempotent; never touches other
// sessions.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		s.state.Store(stateClosing)
		s.cancel()
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.server.registry.Remove(s)
		s.state.Store(stateClosed)
		s.server.metrics.ActiveConnections.Add(-1)
		s.server.metrics.TotalDisconnects.Add(1)
		slog.Debug("session closed", "remote", s.remoteAddr)
	})
}

// Close terminates the session from outside its read loop (process shutdown).
func (s *Session) Close() {
	s.shutdown()
}

// pingInterval derives the keepalive ping period from the read timeout,
// leaving headroom for the pong to arrive before the deadline.
func pingInterval(readTimeout time.Duration) time.Duration {
	interval := readTimeout * 9 / 10
	if interval <= 0 {
		interval = 54 * time.Second
	}
	return interval
}
