package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/chatwire/pkg/datastore"
)

// ChannelYAML represents a channel in YAML config.
type ChannelYAML struct {
	Name string `yaml:"name"`
}

// ChannelsConfig is the top-level YAML config for channels.
type ChannelsConfig struct {
	Channels []ChannelYAML `yaml:"channels"`
}

// LoadChannelsFromYAML reads a channels YAML file and creates the listed
// channels on the given server.
func LoadChannelsFromYAML(ctx context.Context, path string, gw datastore.Gateway, serverID int64) error {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI config
	if err != nil {
		return fmt.Errorf("read channels config: %w", err)
	}
	return ImportChannelsFromYAML(ctx, data, gw, serverID)
}

// ImportChannelsFromYAML parses YAML data and creates the listed channels.
// Channels that already exist are skipped; individual failures are logged
// and do not abort the rest of the import.
func ImportChannelsFromYAML(ctx context.Context, data []byte, gw datastore.Gateway, serverID int64) error {
	var cfg ChannelsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse channels config: %w", err)
	}

	existing, err := gw.ListChannels(ctx, serverID)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, ch := range existing {
		have[ch.ChannelName] = true
	}

	created := 0
	for _, ch := range cfg.Channels {
		if have[ch.Name] {
			continue
		}
		if _, err := gw.CreateChannel(ctx, serverID, ch.Name); err != nil {
			slog.Error("failed to create channel from config", "name", ch.Name, "err", err)
			continue
		}
		have[ch.Name] = true
		created++
		slog.Debug("created channel from config", "name", ch.Name, "server_id", serverID)
	}

	slog.Info("imported channels from YAML", "count", len(cfg.Channels), "created", created)
	return nil
}
