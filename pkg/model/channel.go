package model

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const MaxChannelNameLength = 64

var ErrChannelNameEmpty = errors.New("channel name must not be empty")
var ErrChannelNameTooLong = errors.New("channel name too long")

// Channel represents a chat channel. Channel identity is scoped per server:
// the (ServerID, ChannelID) pair is the composite key.
type Channel struct {
	ServerID    int64  `json:"server_id"`
	ChannelID   int64  `json:"channel_id"`
	ChannelName string `json:"channel_name"`
}

// ValidateChannelName checks a channel name for emptiness and length.
func ValidateChannelName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrChannelNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxChannelNameLength {
		return ErrChannelNameTooLong
	}
	return nil
}
