package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/NicolasHaas/chatwire/pkg/datastore"
	"github.com/NicolasHaas/chatwire/pkg/logging"
	"github.com/NicolasHaas/chatwire/pkg/server"
	"github.com/NicolasHaas/chatwire/pkg/version"
)

func main() {
	cfg := server.DefaultConfig()

	configFile := flag.String("config", "", "YAML config file (flags override file values)")
	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Websocket bind address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file path")
	flag.StringVar(&cfg.Secret, "secret", "", "HMAC secret for session tokens (required)")
	flag.StringVar(&cfg.ChannelsFile, "channels-file", "", "YAML file defining channels to create on startup")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	flag.StringVar(&cfg.AdminUser, "admin-user", cfg.AdminUser, "Seeded admin account name")
	flag.StringVar(&cfg.AdminPassword, "admin-password", "", "Seeded admin account password (empty = no admin seeded)")
	flag.BoolVar(&cfg.StrictValidation, "strict", false, "Reject payloads missing required fields before dispatch")
	flag.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "Session token expiry (0 = never)")
	showVersion := flag.Bool("version", false, "Print version and exit")

	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	// Layer the YAML config under the flag values: file first, then re-apply
	// any flag the operator set explicitly.
	if *configFile != "" {
		fileCfg, err := server.LoadConfig(*configFile, server.DefaultConfig())
		if err != nil {
			slog.Error("load config", "file", *configFile, "err", err)
			os.Exit(1)
		}
		flagged := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { flagged[f.Name] = true })
		if !flagged["listen"] {
			cfg.ListenAddr = fileCfg.ListenAddr
		}
		if !flagged["db"] {
			cfg.DBPath = fileCfg.DBPath
		}
		if !flagged["secret"] {
			cfg.Secret = fileCfg.Secret
		}
		if !flagged["channels-file"] {
			cfg.ChannelsFile = fileCfg.ChannelsFile
		}
		if !flagged["metrics"] {
			cfg.MetricsAddr = fileCfg.MetricsAddr
		}
		if !flagged["admin-user"] {
			cfg.AdminUser = fileCfg.AdminUser
		}
		if !flagged["admin-password"] {
			cfg.AdminPassword = fileCfg.AdminPassword
		}
		if !flagged["strict"] {
			cfg.StrictValidation = fileCfg.StrictValidation
		}
		if !flagged["token-ttl"] {
			cfg.TokenTTL = fileCfg.TokenTTL
		}
		cfg.DefaultServerID = fileCfg.DefaultServerID
		cfg.ReadTimeout = fileCfg.ReadTimeout
		cfg.WriteTimeout = fileCfg.WriteTimeout
		cfg.GatewayTimeout = fileCfg.GatewayTimeout
		cfg.SendBuffer = fileCfg.SendBuffer
		cfg.BusBuffer = fileCfg.BusBuffer
	}

	if cfg.Secret == "" {
		fmt.Fprintln(os.Stderr, "a token secret is required (-secret or config file)")
		os.Exit(1)
	}

	store, err := datastore.NewStore(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	slog.Info("ChatWire", "version", version.String())

	srv := server.New(cfg, server.Dependencies{Gateway: store})
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
