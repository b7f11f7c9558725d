package datastore

import (
	"context"

	"github.com/NicolasHaas/chatwire/pkg/model"
)

// Gateway is the narrow persistence contract the hub core depends on.
// The default implementation is the SQLite Store; it can be swapped for
// PostgreSQL or an in-memory store for testing.
type Gateway interface {
	// ValidateCredentials looks up the user by name and verifies the
	// password against the stored hash/salt. Returns (nil, nil) when the
	// user is unknown or the password does not match.
	ValidateCredentials(ctx context.Context, userName, password string) (*model.User, error)

	// CreateUser hashes the password and inserts the user, returning the
	// assigned user id. Duplicate user names fail.
	CreateUser(ctx context.Context, u model.User, password string) (int64, error)

	// ListChannels returns all channels of a server.
	ListChannels(ctx context.Context, serverID int64) ([]model.Channel, error)

	// CreateChannel inserts a channel and returns its assigned id.
	CreateChannel(ctx context.Context, serverID int64, channelName string) (int64, error)

	// ListUsers returns the public fields of all users on a server.
	ListUsers(ctx context.Context, serverID int64) ([]model.PublicUser, error)

	// CreateMessage persists a message and returns its assigned id.
	CreateMessage(ctx context.Context, m model.Message) (int64, error)

	// Close closes the underlying storage connection.
	Close() error
}

// Compile-time check: *Store implements Gateway.
var _ Gateway = (*Store)(nil)
