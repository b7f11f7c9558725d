package server

import (
	"encoding/json"
	"testing"
)

// readFrame pops the next queued frame off the session's send channel.
func readFrame(t *testing.T, sess *Session) map[string]any {
	t.Helper()

	select {
	case frame := <-sess.send:
		var got map[string]any
		if err := json.Unmarshal(frame, &got); err != nil {
			t.Fatalf("Unmarshal frame: %v", err)
		}
		return got
	default:
		t.Fatalf("no frame queued")
		return nil
	}
}

func TestHandleFrameInvalidJSON(t *testing.T) {
	srv := newTestServer(t, newFakeGateway())
	sess := newOpenSession(t, srv)

	type tcase struct {
		frame string
	}

	tcases := map[string]tcase{
		"not_json":          {frame: "hello there"},
		"missing_operation": {frame: `{"data": {}}`},
		"wrong_op_type":     {frame: `{"operation": "login", "data": {}}`},
	}

	fn := func(tc tcase) func(*testing.T) {
		return func(t *testing.T) {
			sess.handleFrame([]byte(tc.frame))

			got := readFrame(t, sess)
			if got["status"] != float64(0) || got["error"] != "invalid msg" {
				t.Fatalf("handleFrame: want invalid msg failure, got %v", got)
			}
			// The session survives the bad frame.
			if !sess.open() {
				t.Fatalf("handleFrame: session should stay open after a bad frame")
			}
		}
	}

	for name, tc := range tcases {
		t.Run(name, fn(tc))
	}

	if got := srv.metrics.ParseFailures.Load(); got != int64(len(tcases)) {
		t.Fatalf("ParseFailures: want=%d got=%d", len(tcases), got)
	}
}

func TestHandleFrameDispatchesAndReplies(t *testing.T) {
	srv := newTestServer(t, newFakeGateway())
	sess := newOpenSession(t, srv)

	sess.handleFrame([]byte(`{"operation": -1, "data": {}}`))

	got := readFrame(t, sess)
	if got["status"] != float64(1) || got["op"] != float64(-1) {
		t.Fatalf("handleFrame: want noop ack, got %v", got)
	}
}

func TestHandleFramePublishesBroadcast(t *testing.T) {
	srv := newTestServer(t, newFakeGateway())
	sender := newOpenSession(t, srv)
	receiver := newOpenSession(t, srv)

	sender.handleFrame([]byte(`{"operation": 6, "data": {"content": "hello", "channel_id": 2}}`))

	// Drain the bus queue synchronously instead of racing its goroutine.
	select {
	case event := <-srv.bus.queue:
		srv.bus.deliver(event)
	default:
		t.Fatalf("no broadcast event queued")
	}

	for _, sess := range []*Session{sender, receiver} {
		got := readFrame(t, sess)
		if got["op"] == float64(-1) {
			got = readFrame(t, sess) // skip the sender's direct ack
		}
		if got["op"] != float64(6) || got["status"] != float64(1) {
			t.Fatalf("broadcast: unexpected frame %v", got)
		}
		data, ok := got["data"].(map[string]any)
		if !ok || data["content"] != "hello" {
			t.Fatalf("broadcast: payload mismatch %v", got)
		}
		if _, ok := data["created_at"]; !ok {
			t.Fatalf("broadcast: server timestamp missing %v", got)
		}
	}
}

func TestHandleFrameStrictPolicyRejects(t *testing.T) {
	gw := newFakeGateway()
	cfg := DefaultConfig()
	cfg.Secret = "test-secret"
	cfg.StrictValidation = true
	srv := New(cfg, Dependencies{Gateway: gw})
	t.Cleanup(func() { srv.cancel() })
	sess := newOpenSession(t, srv)

	// create_channel without channel_name is stopped before the handler runs.
	sess.handleFrame([]byte(`{"operation": 4, "data": {"server_id": 1}}`))

	got := readFrame(t, sess)
	if got["status"] != float64(0) || got["error"] != "unknown operation or invalid data" {
		t.Fatalf("strict policy: want rejection, got %v", got)
	}
	if len(gw.channels) != 0 {
		t.Fatalf("strict policy: handler should not have run")
	}
}

func TestDeliverStates(t *testing.T) {
	srv := newTestServer(t, newFakeGateway())
	sess := newOpenSession(t, srv)

	if !sess.deliver([]byte(`{}`)) {
		t.Fatalf("deliver: open session should accept frames")
	}

	sess.shutdown()
	if sess.deliver([]byte(`{}`)) {
		t.Fatalf("deliver: closed session should drop frames")
	}
	if srv.registry.Len() != 0 {
		t.Fatalf("shutdown: session should be deregistered")
	}
}

func TestDeliverDropsWhenBufferFull(t *testing.T) {
	gw := newFakeGateway()
	cfg := DefaultConfig()
	cfg.Secret = "test-secret"
	cfg.SendBuffer = 1
	srv := New(cfg, Dependencies{Gateway: gw})
	t.Cleanup(func() { srv.cancel() })
	sess := newOpenSession(t, srv)

	if !sess.deliver([]byte(`{}`)) {
		t.Fatalf("deliver: first frame should fit")
	}
	if sess.deliver([]byte(`{}`)) {
		t.Fatalf("deliver: full buffer should drop, not block")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	srv := newTestServer(t, newFakeGateway())
	sess := newOpenSession(t, srv)
	srv.metrics.ActiveConnections.Store(1)

	sess.shutdown()
	sess.shutdown()
	sess.Close()

	if got := srv.metrics.ActiveConnections.Load(); got != 0 {
		t.Fatalf("shutdown: active connections want=0 got=%d", got)
	}
	if got := srv.metrics.TotalDisconnects.Load(); got != 1 {
		t.Fatalf("shutdown: disconnects want=1 got=%d", got)
	}
}
