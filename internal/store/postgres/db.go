package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"chatcore/internal/store"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewStore wraps db with the PostgreSQL dialect.
func NewStore(db *sql.DB) *store.DB {
	return store.New(db, store.Postgres)
}

// Migrate runs idempotent DDL migrations for the messaging schema on PostgreSQL.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id          BIGSERIAL    PRIMARY KEY,
			email       VARCHAR(255) UNIQUE NOT NULL,
			name        VARCHAR(255) NOT NULL DEFAULT '',
			avatar_url  TEXT,
			created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id                BIGSERIAL    PRIMARY KEY,
			type              VARCHAR(16)  NOT NULL,
			name              VARCHAR(255),
			created_by        BIGINT       NOT NULL REFERENCES users(id),
			direct_key        VARCHAR(64)  UNIQUE,
			is_active         BOOLEAN      NOT NULL DEFAULT TRUE,
			last_message_at   TIMESTAMPTZ,
			last_message_text VARCHAR(100),
			created_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS conversation_participants (
			conversation_id      BIGINT      NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			user_id              BIGINT      NOT NULL REFERENCES users(id),
			is_active            BOOLEAN     NOT NULL DEFAULT TRUE,
			is_muted             BOOLEAN     NOT NULL DEFAULT FALSE,
			last_read_at         TIMESTAMPTZ,
			last_read_message_id BIGINT,
			joined_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			left_at              TIMESTAMPTZ,
			PRIMARY KEY (conversation_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id                BIGSERIAL   PRIMARY KEY,
			conversation_id   BIGINT      NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			sender_id         BIGINT      NOT NULL REFERENCES users(id),
			content           TEXT        NOT NULL,
			type              VARCHAR(16) NOT NULL DEFAULT 'TEXT',
			metadata          TEXT,
			is_system_message BOOLEAN     NOT NULL DEFAULT FALSE,
			edited_at         TIMESTAMPTZ,
			deleted_at        TIMESTAMPTZ,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS message_statuses (
			message_id BIGINT      NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			user_id    BIGINT      NOT NULL REFERENCES users(id),
			status     VARCHAR(16) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (message_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS messaging_settings (
			id                     INTEGER     PRIMARY KEY,
			enabled                BOOLEAN     NOT NULL DEFAULT TRUE,
			max_message_length     INTEGER     NOT NULL,
			max_group_participants INTEGER     NOT NULL,
			updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS notification_preferences (
			user_id        BIGINT      NOT NULL REFERENCES users(id),
			category       VARCHAR(32) NOT NULL,
			enabled        BOOLEAN     NOT NULL DEFAULT TRUE,
			dnd_enabled    BOOLEAN     NOT NULL DEFAULT FALSE,
			dnd_start_time VARCHAR(5)  NOT NULL DEFAULT '',
			dnd_end_time   VARCHAR(5)  NOT NULL DEFAULT '',
			dnd_days       TEXT,
			PRIMARY KEY (user_id, category)
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id         VARCHAR(36)  PRIMARY KEY,
			user_id    BIGINT       NOT NULL REFERENCES users(id),
			type       VARCHAR(32)  NOT NULL,
			category   VARCHAR(32)  NOT NULL,
			title      VARCHAR(255) NOT NULL,
			content    TEXT         NOT NULL,
			link       TEXT         NOT NULL,
			metadata   TEXT,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_conversations_type ON conversations(type)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_last_message_at ON conversations(last_message_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_conv_participants_user ON conversation_participants(user_id, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id)`,
		`CREATE INDEX IF NOT EXISTS idx_message_statuses_user_status ON message_statuses(user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
