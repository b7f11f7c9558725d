// Package protocol defines the wire envelope exchanged over the websocket.
//
// Each client→server frame is a single JSON object
// {"operation": <int>, "data": {...}}; each server→client frame is
// {"status": 0|1, "op": <int>, ...payload or "error"}.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Operation codes. The integer values are the wire contract.
const (
	OpNoop          = -1
	OpLogin         = 1
	OpCreateUser    = 2
	OpListChannels  = 3
	OpCreateChannel = 4
	OpListUsers     = 5
	OpPostMessage   = 6
	OpSetLocale     = 7
)

// MaxFrameSize is the maximum accepted inbound frame size (64KB).
const MaxFrameSize = 65536

// Reply status values.
const (
	StatusFail = 0
	StatusOK   = 1
)

var ErrMissingOperation = errors.New("protocol: missing operation field")

// Request is one inbound operation envelope.
type Request struct {
	Operation int            `json:"operation"`
	Data      map[string]any `json:"data"`
}

// Token returns the auth token carried in the payload, or "".
func (r *Request) Token() string {
	tok, _ := r.Data["token"].(string)
	return tok
}

// String returns the string payload field named key, or "".
func (r *Request) String(key string) string {
	s, _ := r.Data[key].(string)
	return s
}

// Int returns the integer payload field named key, or 0. JSON numbers
// decode as float64; whole values are truncated to int64.
func (r *Request) Int(key string) int64 {
	switch v := r.Data[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

// DecodeRequest parses a text frame into a Request. The frame must be a
// JSON object carrying an integer "operation"; anything else is a parse error.
func DecodeRequest(frame []byte) (*Request, error) {
	var raw struct {
		Operation *int           `json:"operation"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(frame, &raw); err != nil {
		return nil, fmt.Errorf("protocol: decode request: %w", err)
	}
	if raw.Operation == nil {
		return nil, ErrMissingOperation
	}
	if raw.Data == nil {
		raw.Data = map[string]any{}
	}
	return &Request{Operation: *raw.Operation, Data: raw.Data}, nil
}

// UserPayload is the user object carried by auth replies. Token is set only
// on login/create-user replies to the initiating session.
type UserPayload struct {
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	ServerID int64  `json:"server_id"`
	Staff    bool   `json:"staff"`
	Admin    bool   `json:"admin"`
	Token    string `json:"token,omitempty"`
}

// Reply is one outbound envelope, either a direct reply or a broadcast event.
type Reply struct {
	Status    int            `json:"status"`
	Op        int            `json:"op"`
	User      *UserPayload   `json:"user,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	Initiator string         `json:"initiator,omitempty"`
}

// Encode serializes the reply to a JSON text frame.
func (r *Reply) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode reply: %w", err)
	}
	return data, nil
}

// Ack returns the empty no-op acknowledgement.
func Ack() *Reply {
	return &Reply{Status: StatusOK, Op: OpNoop, Data: map[string]any{}}
}

// OK returns a success reply carrying a data payload under the given op.
func OK(op int, data map[string]any) *Reply {
	return &Reply{Status: StatusOK, Op: op, Data: data}
}

// OKUser returns a success reply carrying a user payload under the given op.
func OKUser(op int, user *UserPayload) *Reply {
	return &Reply{Status: StatusOK, Op: op, User: user}
}

// Fail returns a generic failure reply.
func Fail(msg string) *Reply {
	return &Reply{Status: StatusFail, Error: msg}
}

// FailAuth returns a failure reply tagged with the auth flow that failed
// ("login" or "create_user").
func FailAuth(msg, initiator string) *Reply {
	return &Reply{Status: StatusFail, Error: msg, Initiator: initiator}
}
