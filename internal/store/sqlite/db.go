package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	sqlitedrv "modernc.org/sqlite"

	"chatcore/internal/store"
)

// The built-in LOWER only folds ASCII. Searches fold both sides with LOWER,
// so it is replaced by a Unicode-aware version on every connection.
func init() {
	sqlitedrv.MustRegisterDeterministicScalarFunction("lower", 1, lower)
}

func lower(_ *sqlitedrv.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return strings.ToLower(fmt.Sprint(v)), nil
	}
}

// Open opens a SQLite database with the given DSN. SQLite has a single writer,
// so the pool is capped at one connection; this also keeps ":memory:"
// databases shared by every query.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// NewStore wraps db with the SQLite dialect.
func NewStore(db *sql.DB) *store.DB {
	return store.New(db, store.SQLite)
}

// Migrate mirrors the PostgreSQL schema with SQLite types.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email VARCHAR(255) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			avatar_url TEXT DEFAULT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type VARCHAR(16) NOT NULL,
			name VARCHAR(255) DEFAULT NULL,
			created_by INTEGER NOT NULL,
			direct_key VARCHAR(64) UNIQUE,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			last_message_at DATETIME DEFAULT NULL,
			last_message_text VARCHAR(100) DEFAULT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (created_by) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS conversation_participants (
			conversation_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			is_muted BOOLEAN NOT NULL DEFAULT 0,
			last_read_at DATETIME DEFAULT NULL,
			last_read_message_id INTEGER DEFAULT NULL,
			joined_at DATETIME NOT NULL,
			left_at DATETIME DEFAULT NULL,
			PRIMARY KEY (conversation_id, user_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL,
			sender_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			type VARCHAR(16) NOT NULL DEFAULT 'TEXT',
			metadata TEXT DEFAULT NULL,
			is_system_message BOOLEAN NOT NULL DEFAULT 0,
			edited_at DATETIME DEFAULT NULL,
			deleted_at DATETIME DEFAULT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
			FOREIGN KEY (sender_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS message_statuses (
			message_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			status VARCHAR(16) NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (message_id, user_id),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS messaging_settings (
			id INTEGER PRIMARY KEY,
			enabled BOOLEAN NOT NULL DEFAULT 1,
			max_message_length INTEGER NOT NULL,
			max_group_participants INTEGER NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS notification_preferences (
			user_id INTEGER NOT NULL,
			category VARCHAR(32) NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT 1,
			dnd_enabled BOOLEAN NOT NULL DEFAULT 0,
			dnd_start_time VARCHAR(5) NOT NULL DEFAULT '',
			dnd_end_time VARCHAR(5) NOT NULL DEFAULT '',
			dnd_days TEXT DEFAULT NULL,
			PRIMARY KEY (user_id, category),
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id VARCHAR(36) PRIMARY KEY,
			user_id INTEGER NOT NULL,
			type VARCHAR(32) NOT NULL,
			category VARCHAR(32) NOT NULL,
			title VARCHAR(255) NOT NULL,
			content TEXT NOT NULL,
			link TEXT NOT NULL,
			metadata TEXT DEFAULT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_type ON conversations(type);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_last_message_at ON conversations(last_message_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_conv_participants_user ON conversation_participants(user_id, is_active);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);`,
		`CREATE INDEX IF NOT EXISTS idx_message_statuses_user_status ON message_statuses(user_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}
