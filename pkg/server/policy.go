package server

import (
	"github.com/NicolasHaas/chatwire/pkg/protocol"
)

// Policy decides whether a decoded request may reach its handler. It sees
// the operation code and the raw payload, nothing else; handlers still do
// their own semantic validation.
type Policy interface {
	Allow(op int, data map[string]any) bool
}

// Permissive admits every decoded request. This is the default: unknown
// codes and malformed payloads are answered by the router with a uniform
// failure, so nothing is gained by rejecting them earlier.
type Permissive struct{}

// Allow always reports true.
func (Permissive) Allow(int, map[string]any) bool { return true }

// RulePolicy rejects requests that lack the payload fields their operation
// needs, before the handler touches the gateway. Operations without a rule
// pass through so the router can still answer unknown codes itself.
type RulePolicy struct {
	required map[int][]string
}

// NewRulePolicy returns the strict payload policy.
func NewRulePolicy() *RulePolicy {
	return &RulePolicy{
		required: map[int][]string{
			protocol.OpCreateUser:    {"user_name", "password"},
			protocol.OpListChannels:  {"server_id"},
			protocol.OpCreateChannel: {"server_id", "channel_name"},
			protocol.OpListUsers:     {"server_id"},
			protocol.OpSetLocale:     {"lang"},
		},
	}
}

// Allow reports whether every required field for op is present and non-nil.
func (p *RulePolicy) Allow(op int, data map[string]any) bool {
	fields, ok := p.required[op]
	if !ok {
		return true
	}
	for _, f := range fields {
		v, present := data[f]
		if !present || v == nil {
			return false
		}
	}
	return true
}
