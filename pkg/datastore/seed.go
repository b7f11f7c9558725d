package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/NicolasHaas/chatwire/pkg/model"
)

// SeedConfig controls first-run seeding.
type SeedConfig struct {
	ServerName    string // name of the initial server row
	ChannelName   string // default channel created on the initial server
	AdminUser     string // admin account user name
	AdminPassword string // admin account password
}

// DefaultSeedConfig returns the seed values used when none are configured.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		ServerName:  "initial",
		ChannelName: "general",
		AdminUser:   "admin",
	}
}

// Seed ensures the initial server, default channel, and admin user exist.
// It is idempotent across restarts: existing rows are left untouched. The
// admin user is only created when AdminPassword is set; on first creation a
// greeting message is posted to the default channel.
func (s *Store) Seed(ctx context.Context, cfg SeedConfig) (int64, error) {
	serverID, err := s.ensureServer(ctx, cfg.ServerName)
	if err != nil {
		return 0, err
	}

	ch, err := s.getChannelByName(ctx, serverID, cfg.ChannelName)
	if err != nil {
		return 0, err
	}
	var channelID int64
	if ch != nil {
		channelID = ch.ChannelID
	} else {
		channelID, err = s.CreateChannel(ctx, serverID, cfg.ChannelName)
		if err != nil {
			return 0, err
		}
		slog.Info("seeded default channel", "channel", cfg.ChannelName, "server_id", serverID)
	}

	if cfg.AdminUser == "" || cfg.AdminPassword == "" {
		return serverID, nil
	}

	var existing int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE user_name = ?", cfg.AdminUser).Scan(&existing)
	if err != nil {
		return 0, fmt.Errorf("datastore: seed: %w", err)
	}
	if existing > 0 {
		return serverID, nil
	}

	adminID, err := s.CreateUser(ctx, model.User{
		UserName: cfg.AdminUser,
		ServerID: serverID,
		Staff:    true,
		Admin:    true,
	}, cfg.AdminPassword)
	if err != nil {
		return 0, err
	}

	if _, err := s.CreateMessage(ctx, model.Message{
		ServerID:  serverID,
		ChannelID: channelID,
		UserID:    adminID,
		Content:   "Hello from admin!",
	}); err != nil {
		return 0, err
	}

	slog.Info("seeded admin user", "user", cfg.AdminUser, "server_id", serverID)
	return serverID, nil
}

// ensureServer returns the id of the named server, creating it if missing.
func (s *Store) ensureServer(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT server_id FROM servers WHERE server_name = ?", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("datastore: seed: %w", err)
	}
	res, err := s.db.ExecContext(ctx, "INSERT INTO servers (server_name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("datastore: seed: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("datastore: seed: %w", err)
	}
	slog.Info("seeded server", "server", name, "server_id", id)
	return id, nil
}
