// Package datastore persists users, channels, and messages behind the
// Gateway contract. The default backend is SQLite.
package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/chatwire/pkg/crypto"
	"github.com/NicolasHaas/chatwire/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// Store provides database access for all chatwire entities.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore: open db: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: enable FK: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS servers (
		server_id   INTEGER PRIMARY KEY AUTOINCREMENT,
		server_name TEXT    NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS users (
		user_id    INTEGER PRIMARY KEY AUTOINCREMENT,
		server_id  INTEGER NOT NULL DEFAULT 1,
		user_name  TEXT    NOT NULL UNIQUE CHECK(length(user_name) > 0 AND length(user_name) <= 32),
		password   BLOB    NOT NULL,
		salt       BLOB    NOT NULL,
		staff      INTEGER NOT NULL DEFAULT 0,
		admin      INTEGER NOT NULL DEFAULT 0,
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS channels (
		channel_id   INTEGER PRIMARY KEY AUTOINCREMENT,
		server_id    INTEGER NOT NULL REFERENCES servers(server_id) ON DELETE CASCADE,
		channel_name TEXT    NOT NULL,
		created_at   TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS messages (
		message_id INTEGER PRIMARY KEY AUTOINCREMENT,
		server_id  INTEGER NOT NULL,
		channel_id INTEGER NOT NULL REFERENCES channels(channel_id) ON DELETE CASCADE,
		user_id    INTEGER NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		content    TEXT    NOT NULL,
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_channels_server ON channels(server_id);
	CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(server_id, channel_id);
	`

	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version:    1,
			statements: []string{schema},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("datastore: migrate: %w", err)
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("datastore: update schema version: %w", err)
	}
	return nil
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// ---- Users ----

// CreateUser validates the user name, derives a fresh hash/salt for the
// password, and inserts the user. Duplicate user names fail on the UNIQUE
// constraint.
func (s *Store) CreateUser(ctx context.Context, u model.User, password string) (int64, error) {
	if err := model.ValidateUserName(u.UserName); err != nil {
		return 0, fmt.Errorf("datastore: create user: %w", err)
	}
	if password == "" {
		return 0, fmt.Errorf("datastore: create user: empty password")
	}
	hash, salt, err := crypto.NewCredential(password)
	if err != nil {
		return 0, fmt.Errorf("datastore: create user: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (server_id, user_name, password, salt, staff, admin) VALUES (?, ?, ?, ?, ?, ?)",
		u.ServerID, u.UserName, hash, salt, u.Staff, u.Admin)
	if err != nil {
		return 0, fmt.Errorf("datastore: create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("datastore: create user: %w", err)
	}
	return id, nil
}

// ValidateCredentials looks up the user by name and verifies the password
// against the stored hash/salt. Returns (nil, nil) when the user is unknown
// or the password does not match; password material never leaves the store.
func (s *Store) ValidateCredentials(ctx context.Context, userName, password string) (*model.User, error) {
	u := &model.User{}
	var hash, salt []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, user_name, server_id, staff, admin, password, salt FROM users WHERE user_name = ?",
		userName).
		Scan(&u.UserID, &u.UserName, &u.ServerID, &u.Staff, &u.Admin, &hash, &salt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: validate credentials: %w", err)
	}
	if !crypto.VerifyPassword(password, hash, salt) {
		return nil, nil
	}
	return u, nil
}

// ListUsers returns the public fields of all users on a server.
func (s *Store) ListUsers(ctx context.Context, serverID int64) ([]model.PublicUser, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, user_name, staff, admin FROM users WHERE server_id = ? ORDER BY user_id",
		serverID)
	if err != nil {
		return nil, fmt.Errorf("datastore: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	users := []model.PublicUser{}
	for rows.Next() {
		var u model.PublicUser
		if err := rows.Scan(&u.UserID, &u.UserName, &u.Staff, &u.Admin); err != nil {
			return nil, fmt.Errorf("datastore: list users: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("datastore: list users: %w", err)
	}
	return users, nil
}

// ---- Channels ----

// CreateChannel validates the channel name and inserts the channel.
func (s *Store) CreateChannel(ctx context.Context, serverID int64, channelName string) (int64, error) {
	if err := model.ValidateChannelName(channelName); err != nil {
		return 0, fmt.Errorf("datastore: create channel: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO channels (server_id, channel_name) VALUES (?, ?)",
		serverID, channelName)
	if err != nil {
		return 0, fmt.Errorf("datastore: create channel: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("datastore: create channel: %w", err)
	}
	return id, nil
}

// ListChannels returns all channels of a server.
func (s *Store) ListChannels(ctx context.Context, serverID int64) ([]model.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT server_id, channel_id, channel_name FROM channels WHERE server_id = ? ORDER BY channel_id",
		serverID)
	if err != nil {
		return nil, fmt.Errorf("datastore: list channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	channels := []model.Channel{}
	for rows.Next() {
		var ch model.Channel
		if err := rows.Scan(&ch.ServerID, &ch.ChannelID, &ch.ChannelName); err != nil {
			return nil, fmt.Errorf("datastore: list channels: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("datastore: list channels: %w", err)
	}
	return channels, nil
}

// getChannelByName retrieves a channel by name within a server.
// Returns (nil, nil) if not found. Used by seeding to stay idempotent.
func (s *Store) getChannelByName(ctx context.Context, serverID int64, name string) (*model.Channel, error) {
	ch := &model.Channel{}
	err := s.db.QueryRowContext(ctx,
		"SELECT server_id, channel_id, channel_name FROM channels WHERE server_id = ? AND channel_name = ?",
		serverID, name).
		Scan(&ch.ServerID, &ch.ChannelID, &ch.ChannelName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get channel: %w", err)
	}
	return ch, nil
}

// ---- Messages ----

// CreateMessage persists a message. The database stamps created_at; the
// broadcast-time stamp on m is not stored.
func (s *Store) CreateMessage(ctx context.Context, m model.Message) (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, fmt.Errorf("datastore: create message: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (server_id, channel_id, user_id, content) VALUES (?, ?, ?, ?)",
		m.ServerID, m.ChannelID, m.UserID, m.Content)
	if err != nil {
		return 0, fmt.Errorf("datastore: create message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("datastore: create message: %w", err)
	}
	return id, nil
}

// ListMessages returns up to limit messages of a channel, oldest first.
// A limit of 0 returns all messages.
func (s *Store) ListMessages(ctx context.Context, serverID, channelID int64, limit int) ([]model.Message, error) {
	query := "SELECT message_id, server_id, channel_id, user_id, content, created_at FROM messages WHERE server_id = ? AND channel_id = ? ORDER BY message_id"
	args := []any{serverID, channelID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("datastore: list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []model.Message{}
	for rows.Next() {
		var m model.Message
		var createdAt string
		if err := rows.Scan(&m.MessageID, &m.ServerID, &m.ChannelID, &m.UserID, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: list messages: %w", err)
		}
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("datastore: list messages: %w", err)
		}
		m.CreatedAt = parsed
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("datastore: list messages: %w", err)
	}
	return messages, nil
}
