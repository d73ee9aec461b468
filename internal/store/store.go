// Package store implements the domain repositories on database/sql. The same
// queries serve PostgreSQL (pgx stdlib) and SQLite (modernc); queries are
// written with "?" placeholders and rebound for PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chatcore/internal/domain"
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn binds a querier (pool or transaction) to a dialect.
type conn struct {
	q       querier
	dialect Dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.rebind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.rebind(query), args...)
}

func (c conn) rebind(query string) string {
	if c.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// DB is the transactional store backed by a *sql.DB.
type DB struct {
	db      *sql.DB
	dialect Dialect
	*repos
}

var _ domain.Store = (*DB)(nil)

// New wraps an opened database.
func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{
		db:      db,
		dialect: dialect,
		repos:   newRepos(conn{q: db, dialect: dialect}),
	}
}

// InTx runs fn inside a transaction and commits when fn returns nil.
func (s *DB) InTx(ctx context.Context, fn func(domain.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newRepos(conn{q: tx, dialect: s.dialect})); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Preferences returns the notification preference lookup.
func (s *DB) Preferences() *PreferenceRepo { return s.preferences }

// Notifications returns the notification sink backed by the notifications table.
func (s *DB) Notifications() *NotificationRepo { return s.notifications }

type repos struct {
	users         *UserRepo
	conversations *ConversationRepo
	participants  *ParticipantRepo
	messages      *MessageRepo
	statuses      *StatusRepo
	settings      *SettingsRepo
	preferences   *PreferenceRepo
	notifications *NotificationRepo
}

func newRepos(c conn) *repos {
	return &repos{
		users:         &UserRepo{c: c},
		conversations: &ConversationRepo{c: c},
		participants:  &ParticipantRepo{c: c},
		messages:      &MessageRepo{c: c},
		statuses:      &StatusRepo{c: c},
		settings:      &SettingsRepo{c: c},
		preferences:   &PreferenceRepo{c: c},
		notifications: &NotificationRepo{c: c},
	}
}

func (r *repos) Users() domain.UserRepository                 { return r.users }
func (r *repos) Conversations() domain.ConversationRepository { return r.conversations }
func (r *repos) Participants() domain.ParticipantRepository   { return r.participants }
func (r *repos) Messages() domain.MessageRepository           { return r.messages }
func (r *repos) Statuses() domain.StatusRepository            { return r.statuses }
func (r *repos) Settings() domain.SettingsRepository          { return r.settings }

// ── helpers ──────────────────────────────────────────────────────────────────

// Now is the store clock: UTC with microsecond precision, matching PostgreSQL.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound("%s not found", what)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

// likePattern escapes LIKE metacharacters for use with ESCAPE '\'. Case
// folding happens in SQL on both sides of the LIKE.
func likePattern(q string) string {
	q = strings.TrimSpace(q)
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
