package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/NicolasHaas/chatwire/pkg/datastore"
	"github.com/NicolasHaas/chatwire/pkg/model"
	"github.com/NicolasHaas/chatwire/pkg/protocol"
	"github.com/NicolasHaas/chatwire/pkg/token"
)

// handlerFunc handles one operation. It returns the direct reply for the
// initiating session and, optionally, an event to broadcast to every open
// session.
type handlerFunc func(ctx context.Context, sess *Session, req *protocol.Request) (reply, event *protocol.Reply)

// Router is the stateless dispatch table from operation code to handler.
type Router struct {
	gateway  datastore.Gateway
	tokens   *token.Service
	metrics  *Metrics
	serverID int64
	timeout  time.Duration
	handlers map[int]handlerFunc
}

// NewRouter builds the dispatch table. serverID is forced onto created users;
// timeout bounds every gateway call (zero = unbounded).
func NewRouter(gateway datastore.Gateway, tokens *token.Service, metrics *Metrics, serverID int64, timeout time.Duration) *Router {
	r := &Router{
		gateway:  gateway,
		tokens:   tokens,
		metrics:  metrics,
		serverID: serverID,
		timeout:  timeout,
	}
	r.handlers = map[int]handlerFunc{
		protocol.OpNoop:          r.handleNoop,
		protocol.OpLogin:         r.handleLogin,
		protocol.OpCreateUser:    r.handleCreateUser,
		protocol.OpListChannels:  r.handleListChannels,
		protocol.OpCreateChannel: r.handleCreateChannel,
		protocol.OpListUsers:     r.handleListUsers,
		protocol.OpPostMessage:   r.handlePostMessage,
		protocol.OpSetLocale:     r.handleSetLocale,
	}
	return r
}

// Dispatch routes the request to its handler. Unknown codes fall through to
// the generic failure reply, never a crash.
func (r *Router) Dispatch(ctx context.Context, sess *Session, req *protocol.Request) (reply, event *protocol.Reply) {
	h, ok := r.handlers[req.Operation]
	if !ok {
		slog.Debug("unknown operation", "op", req.Operation)
		return protocol.Fail("unknown operation or invalid data"), nil
	}
	return h(ctx, sess, req)
}

// gatewayCtx bounds a gateway call with the configured timeout.
func (r *Router) gatewayCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Router) handleNoop(context.Context, *Session, *protocol.Request) (*protocol.Reply, *protocol.Reply) {
	return protocol.Ack(), nil
}

// handleLogin authenticates by token (stateless auto-login) or by
// user_name+password. A valid token short-circuits the password check; the
// presented token is attached to the returned claims. Every failure path
// collapses to the same uniform reply.
func (r *Router) handleLogin(ctx context.Context, sess *Session, req *protocol.Request) (*protocol.Reply, *protocol.Reply) {
	if tok := req.Token(); tok != "" {
		if ok, u := r.tokens.Verify(tok); ok {
			sess.SetUser(&u)
			r.metrics.SuccessfulAuths.Add(1)
			return protocol.OKUser(protocol.OpLogin, userPayload(u, tok)), nil
		}
		slog.Debug("auto-login token rejected", "remote", sess.remoteAddr)
	}

	userName := req.String("user_name")
	gctx, cancel := r.gatewayCtx(ctx)
	defer cancel()
	u, err := r.gateway.ValidateCredentials(gctx, userName, req.String("password"))
	if err != nil {
		slog.Error("gateway: validate credentials", "user", userName, "err", err)
		return r.failAuth("login"), nil
	}
	if u == nil {
		slog.Debug("login rejected", "user", userName)
		return r.failAuth("login"), nil
	}

	signed, err := r.tokens.Issue(*u)
	if err != nil {
		slog.Error("token: issue", "user", userName, "err", err)
		return r.failAuth("login"), nil
	}

	sess.SetUser(u)
	r.metrics.SuccessfulAuths.Add(1)
	return protocol.OKUser(protocol.OpLogin, userPayload(*u, signed)), nil
}

// handleCreateUser registers a user. Server-assigned defaults (server id, no
// staff, no admin) are forced onto the payload regardless of what the client
// sent. On success the new user's public fields are announced to every open
// session as a user-list event.
func (r *Router) handleCreateUser(ctx context.Context, sess *Session, req *protocol.Request) (*protocol.Reply, *protocol.Reply) {
	userName := req.String("user_name")
	password := req.String("password")

	gctx, cancel := r.gatewayCtx(ctx)
	defer cancel()
	if _, err := r.gateway.CreateUser(gctx, model.User{UserName: userName, ServerID: r.serverID}, password); err != nil {
		slog.Warn("create user rejected", "user", userName, "err", err)
		return r.failAuth("create_user"), nil
	}

	// Re-fetch through the credential path so the reply carries exactly what
	// a subsequent login would see.
	vctx, vcancel := r.gatewayCtx(ctx)
	defer vcancel()
	u, err := r.gateway.ValidateCredentials(vctx, userName, password)
	if err != nil || u == nil {
		slog.Error("gateway: validate created user", "user", userName, "err", err)
		return r.failAuth("create_user"), nil
	}

	signed, err := r.tokens.Issue(*u)
	if err != nil {
		slog.Error("token: issue", "user", userName, "err", err)
		return r.failAuth("create_user"), nil
	}

	sess.SetUser(u)
	r.metrics.UsersCreated.Add(1)
	r.metrics.SuccessfulAuths.Add(1)
	slog.Info("user created", "user", u.UserName, "user_id", u.UserID)

	event := protocol.OK(protocol.OpListUsers, map[string]any{
		"users": []model.PublicUser{u.Public()},
	})
	return protocol.OKUser(protocol.OpCreateUser, userPayload(*u, signed)), event
}

func (r *Router) handleListChannels(ctx context.Context, _ *Session, req *protocol.Request) (*protocol.Reply, *protocol.Reply) {
	gctx, cancel := r.gatewayCtx(ctx)
	defer cancel()
	channels, err := r.gateway.ListChannels(gctx, req.Int("server_id"))
	if err != nil {
		slog.Error("gateway: list channels", "err", err)
		return protocol.Fail("unknown operation or invalid data"), nil
	}
	return protocol.OK(protocol.OpListChannels, map[string]any{"channels": channels}), nil
}

// handleCreateChannel inserts the channel, then re-derives the full channel
// list for the server and broadcasts it under the list-channels code. The
// direct reply to the initiator is a bare no-op ack.
func (r *Router) handleCreateChannel(ctx context.Context, _ *Session, req *protocol.Request) (*protocol.Reply, *protocol.Reply) {
	serverID := req.Int("server_id")

	gctx, cancel := r.gatewayCtx(ctx)
	defer cancel()
	if _, err := r.gateway.CreateChannel(gctx, serverID, req.String("channel_name")); err != nil {
		slog.Warn("create channel rejected", "err", err)
		return protocol.Fail("unknown operation or invalid data"), nil
	}
	r.metrics.ChannelsCreated.Add(1)

	lctx, lcancel := r.gatewayCtx(ctx)
	defer lcancel()
	channels, err := r.gateway.ListChannels(lctx, serverID)
	if err != nil {
		// The channel exists; only the refresh event is lost.
		slog.Error("gateway: list channels after create", "err", err)
		return protocol.Ack(), nil
	}
	event := protocol.OK(protocol.OpListChannels, map[string]any{"channels": channels})
	return protocol.Ack(), event
}

func (r *Router) handleListUsers(ctx context.Context, _ *Session, req *protocol.Request) (*protocol.Reply, *protocol.Reply) {
	gctx, cancel := r.gatewayCtx(ctx)
	defer cancel()
	users, err := r.gateway.ListUsers(gctx, req.Int("server_id"))
	if err != nil {
		slog.Error("gateway: list users", "err", err)
		return protocol.Fail("unknown operation or invalid data"), nil
	}
	return protocol.OK(protocol.OpListUsers, map[string]any{"users": users}), nil
}

// handlePostMessage stamps a server-side timestamp and broadcasts the
// payload under the post-message code. An empty payload suppresses the
// broadcast entirely. Persistence is best-effort: storage failures are
// logged and hidden from the client, and never block the broadcast.
func (r *Router) handlePostMessage(ctx context.Context, _ *Session, req *protocol.Request) (*protocol.Reply, *protocol.Reply) {
	if len(req.Data) == 0 {
		return protocol.Ack(), nil
	}

	now := time.Now()
	data := make(map[string]any, len(req.Data)+1)
	for k, v := range req.Data {
		data[k] = v
	}
	data["created_at"] = now.Unix()

	msg := model.Message{
		ServerID:  req.Int("server_id"),
		ChannelID: req.Int("channel_id"),
		UserID:    req.Int("user_id"),
		Content:   req.String("content"),
		CreatedAt: now,
	}
	if msg.ChannelID != 0 && msg.Content != "" {
		gctx, cancel := r.gatewayCtx(ctx)
		defer cancel()
		if _, err := r.gateway.CreateMessage(gctx, msg); err != nil {
			slog.Error("gateway: create message", "channel_id", msg.ChannelID, "err", err)
		}
	}

	r.metrics.MessagesBroadcast.Add(1)
	return protocol.Ack(), protocol.OK(protocol.OpPostMessage, data)
}

func (r *Router) handleSetLocale(_ context.Context, sess *Session, req *protocol.Request) (*protocol.Reply, *protocol.Reply) {
	if lang := req.String("lang"); lang != "" {
		sess.SetLocale(lang)
	}
	return protocol.Ack(), nil
}

// failAuth counts the failure and builds the uniform auth error reply tagged
// with the initiating flow.
func (r *Router) failAuth(initiator string) *protocol.Reply {
	r.metrics.FailedAuths.Add(1)
	return protocol.FailAuth("invalid user credentials", initiator)
}

// userPayload converts a user plus its token into the reply payload.
func userPayload(u model.User, tok string) *protocol.UserPayload {
	return &protocol.UserPayload{
		UserID:   u.UserID,
		UserName: u.UserName,
		ServerID: u.ServerID,
		Staff:    u.Staff,
		Admin:    u.Admin,
		Token:    tok,
	}
}
