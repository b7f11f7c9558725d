package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/NicolasHaas/chatwire/pkg/protocol"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeRequest(t *testing.T) {
	t.Parallel()

	type tcase struct {
		frame     string
		expectErr bool
		wantOp    int
		wantData  map[string]any
	}

	tcases := map[string]tcase{
		"noop": {
			frame:    `{"operation": -1, "data": {}}`,
			wantOp:   protocol.OpNoop,
			wantData: map[string]any{},
		},
		"login_with_fields": {
			frame:    `{"operation": 1, "data": {"user_name": "johndoe", "password": "hunter2"}}`,
			wantOp:   protocol.OpLogin,
			wantData: map[string]any{"user_name": "johndoe", "password": "hunter2"},
		},
		"missing_data_defaults_empty": {
			frame:    `{"operation": 3}`,
			wantOp:   protocol.OpListChannels,
			wantData: map[string]any{},
		},
		"missing_operation": {
			frame:     `{"data": {"user_name": "johndoe"}}`,
			expectErr: true,
		},
		"not_json": {
			frame:     `hello there`,
			expectErr: true,
		},
		"wrong_operation_type": {
			frame:     `{"operation": "login", "data": {}}`,
			expectErr: true,
		},
		"empty_frame": {
			frame:     ``,
			expectErr: true,
		},
		"json_array": {
			frame:     `[1, 2, 3]`,
			expectErr: true,
		},
	}

	fn := func(tc tcase) func(*testing.T) {
		return func(t *testing.T) {
			t.Parallel()

			req, err := protocol.DecodeRequest([]byte(tc.frame))
			if tc.expectErr {
				if err == nil {
					t.Fatalf("DecodeRequest: expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeRequest: unexpected error: %v", err)
			}
			if req.Operation != tc.wantOp {
				t.Fatalf("DecodeRequest: operation want=%d got=%d", tc.wantOp, req.Operation)
			}
			if diff := cmp.Diff(tc.wantData, req.Data); diff != "" {
				t.Errorf("DecodeRequest: data mismatch (-want +got):\n%s", diff)
			}
		}
	}

	for name, tc := range tcases {
		t.Run(name, fn(tc))
	}
}

func TestRequestAccessors(t *testing.T) {
	t.Parallel()

	req, err := protocol.DecodeRequest([]byte(`{"operation": 6, "data": {"content": "hi", "server_id": 1, "channel_id": 2.0, "token": "abc"}}`))
	if err != nil {
		t.Fatalf("DecodeRequest: unexpected error: %v", err)
	}

	if got := req.String("content"); got != "hi" {
		t.Errorf("String(content): want=hi got=%q", got)
	}
	if got := req.String("missing"); got != "" {
		t.Errorf("String(missing): want empty, got=%q", got)
	}
	// JSON numbers decode as float64; both forms must read as int64.
	if got := req.Int("server_id"); got != 1 {
		t.Errorf("Int(server_id): want=1 got=%d", got)
	}
	if got := req.Int("channel_id"); got != 2 {
		t.Errorf("Int(channel_id): want=2 got=%d", got)
	}
	if got := req.Int("content"); got != 0 {
		t.Errorf("Int(content): non-numeric should read 0, got=%d", got)
	}
	if got := req.Token(); got != "abc" {
		t.Errorf("Token: want=abc got=%q", got)
	}
}

func TestReplyEncode(t *testing.T) {
	t.Parallel()

	type tcase struct {
		reply *protocol.Reply
		want  map[string]any
	}

	tcases := map[string]tcase{
		"ack_omits_empty_data": {
			reply: protocol.Ack(),
			want:  map[string]any{"status": float64(1), "op": float64(-1)},
		},
		"fail": {
			reply: protocol.Fail("invalid msg"),
			want:  map[string]any{"status": float64(0), "op": float64(0), "error": "invalid msg"},
		},
		"fail_auth": {
			reply: protocol.FailAuth("invalid user credentials", "login"),
			want: map[string]any{
				"status":    float64(0),
				"op":        float64(0),
				"error":     "invalid user credentials",
				"initiator": "login",
			},
		},
		"ok_with_data": {
			reply: protocol.OK(protocol.OpListChannels, map[string]any{"channels": []any{}}),
			want: map[string]any{
				"status": float64(1),
				"op":     float64(3),
				"data":   map[string]any{"channels": []any{}},
			},
		},
	}

	fn := func(tc tcase) func(*testing.T) {
		return func(t *testing.T) {
			t.Parallel()

			frame, err := tc.reply.Encode()
			if err != nil {
				t.Fatalf("Encode: unexpected error: %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal(frame, &got); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Encode mismatch (-want +got):\n%s", diff)
			}
		}
	}

	for name, tc := range tcases {
		t.Run(name, fn(tc))
	}
}

func TestOKUserOmitsEmptyToken(t *testing.T) {
	t.Parallel()

	reply := protocol.OKUser(protocol.OpLogin, &protocol.UserPayload{
		UserID:   7,
		UserName: "johndoe",
		ServerID: 1,
	})
	frame, err := reply.Encode()
	if err != nil {
		t.Fatalf("Encode: unexpected error: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(frame, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	user, ok := got["user"].(map[string]any)
	if !ok {
		t.Fatalf("Encode: missing user object: %v", got)
	}
	if _, present := user["token"]; present {
		t.Errorf("Encode: empty token should be omitted, got %v", user)
	}
	if user["user_name"] != "johndoe" {
		t.Errorf("Encode: user_name want=johndoe got=%v", user["user_name"])
	}
}
