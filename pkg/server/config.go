package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration.
type Config struct {
	ListenAddr  string // websocket bind address (e.g. ":8600")
	MetricsAddr string // HTTP bind address for /metrics endpoint (empty = disabled)
	DBPath      string // SQLite database path
	Secret      string // HMAC secret for signing session tokens

	DefaultServerID int64 // server id assigned to users created over the wire

	ReadTimeout    time.Duration // per-connection read/pong deadline
	WriteTimeout   time.Duration // per-frame write deadline
	GatewayTimeout time.Duration // per-call storage timeout (0 = unbounded)
	TokenTTL       time.Duration // token expiry (0 = tokens never expire)

	SendBuffer int // per-session outbound frame buffer
	BusBuffer  int // broadcast queue depth

	StrictValidation bool   // reject payloads missing required fields before dispatch
	ChannelsFile     string // YAML file defining channels to create on startup

	AdminUser     string // seeded admin account name (requires AdminPassword)
	AdminPassword string // seeded admin account password (empty = no admin seeded)
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":8600",
		MetricsAddr:     ":8602",
		DBPath:          "chatwire.db",
		DefaultServerID: 1,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		GatewayTimeout:  5 * time.Second,
		SendBuffer:      256,
		BusBuffer:       256,
		AdminUser:       "admin",
	}
}

// fileConfig mirrors Config for YAML, with durations as strings so operators
// can write "60s" instead of nanoseconds.
type fileConfig struct {
	ListenAddr       string `yaml:"listen_addr"`
	MetricsAddr      string `yaml:"metrics_addr"`
	DBPath           string `yaml:"db_path"`
	Secret           string `yaml:"secret"`
	DefaultServerID  int64  `yaml:"default_server_id"`
	ReadTimeout      string `yaml:"read_timeout"`
	WriteTimeout     string `yaml:"write_timeout"`
	GatewayTimeout   string `yaml:"gateway_timeout"`
	TokenTTL         string `yaml:"token_ttl"`
	SendBuffer       int    `yaml:"send_buffer"`
	BusBuffer        int    `yaml:"bus_buffer"`
	StrictValidation bool   `yaml:"strict_validation"`
	ChannelsFile     string `yaml:"channels_file"`
	AdminUser        string `yaml:"admin_user"`
	AdminPassword    string `yaml:"admin_password"`
}

// LoadConfig reads a YAML config file over the given defaults. Fields absent
// from the file keep their default values.
func LoadConfig(path string, defaults Config) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
	if err != nil {
		return defaults, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return defaults, fmt.Errorf("parse config: %w", err)
	}

	cfg := defaults
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.MetricsAddr != "" {
		cfg.MetricsAddr = fc.MetricsAddr
	}
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	if fc.Secret != "" {
		cfg.Secret = fc.Secret
	}
	if fc.DefaultServerID != 0 {
		cfg.DefaultServerID = fc.DefaultServerID
	}
	if fc.SendBuffer != 0 {
		cfg.SendBuffer = fc.SendBuffer
	}
	if fc.BusBuffer != 0 {
		cfg.BusBuffer = fc.BusBuffer
	}
	if fc.StrictValidation {
		cfg.StrictValidation = true
	}
	if fc.ChannelsFile != "" {
		cfg.ChannelsFile = fc.ChannelsFile
	}
	if fc.AdminUser != "" {
		cfg.AdminUser = fc.AdminUser
	}
	if fc.AdminPassword != "" {
		cfg.AdminPassword = fc.AdminPassword
	}

	for _, d := range []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{fc.ReadTimeout, "read_timeout", &cfg.ReadTimeout},
		{fc.WriteTimeout, "write_timeout", &cfg.WriteTimeout},
		{fc.GatewayTimeout, "gateway_timeout", &cfg.GatewayTimeout},
		{fc.TokenTTL, "token_ttl", &cfg.TokenTTL},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return defaults, fmt.Errorf("parse config: %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return cfg, nil
}
