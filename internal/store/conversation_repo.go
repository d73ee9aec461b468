package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatcore/internal/domain"
)

type ConversationRepo struct {
	c conn
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

const conversationColumns = `c.id, c.type, c.name, c.created_by, c.direct_key, c.is_active,
	c.last_message_at, c.last_message_text, c.created_at, c.updated_at`

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = Now()
	}
	c.UpdatedAt = c.CreatedAt
	err := r.c.queryRow(ctx, `
		INSERT INTO conversations (type, name, created_by, direct_key, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (direct_key) DO NOTHING
		RETURNING id
	`, string(c.Type), c.Name, c.CreatedBy, c.DirectKey, c.IsActive, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	c, err := scanConversation(r.c.queryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c WHERE c.id = ?
	`, id))
	if err != nil {
		return nil, notFound(err, "conversation")
	}
	return c, nil
}

// FindDirect finds a DIRECT conversation whose active participants are exactly a and b.
func (r *ConversationRepo) FindDirect(ctx context.Context, a, b int64) (*domain.Conversation, error) {
	c, err := scanConversation(r.c.queryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE c.type = ?
		  AND (SELECT COUNT(*) FROM conversation_participants cp
		       WHERE cp.conversation_id = c.id AND cp.is_active = TRUE) = 2
		  AND EXISTS (SELECT 1 FROM conversation_participants cp
		              WHERE cp.conversation_id = c.id AND cp.user_id = ? AND cp.is_active = TRUE)
		  AND EXISTS (SELECT 1 FROM conversation_participants cp
		              WHERE cp.conversation_id = c.id AND cp.user_id = ? AND cp.is_active = TRUE)
		ORDER BY c.id ASC
		LIMIT 1
	`, string(domain.ConversationDirect), a, b))
	if err != nil {
		return nil, notFound(err, "direct conversation")
	}
	return c, nil
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64, f domain.ConversationFilter) ([]*domain.Conversation, int, error) {
	where := `
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = ? AND cp.is_active = TRUE AND c.is_active = TRUE`
	args := []any{userID}
	if f.Type != "" {
		where += ` AND c.type = ?`
		args = append(args, string(f.Type))
	}

	var total int
	if err := r.c.queryRow(ctx, `SELECT COUNT(*) `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	rows, err := r.c.query(ctx, `
		SELECT `+conversationColumns+where+`
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC
		LIMIT ? OFFSET ?
	`, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	res, err := scanConversations(rows)
	if err != nil {
		return nil, 0, err
	}
	return res, total, nil
}

// Search matches name, last-message preview and other participants' name or email.
func (r *ConversationRepo) Search(ctx context.Context, userID int64, query string, limit int) ([]*domain.Conversation, error) {
	pattern := likePattern(query)
	rows, err := r.c.query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE c.is_active = TRUE
		  AND EXISTS (SELECT 1 FROM conversation_participants me
		              WHERE me.conversation_id = c.id AND me.user_id = ? AND me.is_active = TRUE)
		  AND (
		        LOWER(COALESCE(c.name, '')) LIKE LOWER(?) ESCAPE '\'
		     OR LOWER(COALESCE(c.last_message_text, '')) LIKE LOWER(?) ESCAPE '\'
		     OR EXISTS (SELECT 1 FROM conversation_participants op
		                JOIN users u ON u.id = op.user_id
		                WHERE op.conversation_id = c.id AND op.is_active = TRUE AND op.user_id <> ?
		                  AND (LOWER(u.name) LIKE LOWER(?) ESCAPE '\' OR LOWER(u.email) LIKE LOWER(?) ESCAPE '\'))
		  )
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC
		LIMIT ?
	`, userID, pattern, pattern, userID, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	return scanConversations(rows)
}

func (r *ConversationRepo) Update(ctx context.Context, c *domain.Conversation) error {
	c.UpdatedAt = Now()
	_, err := r.c.exec(ctx, `
		UPDATE conversations SET name = ?, is_active = ?, updated_at = ? WHERE id = ?
	`, c.Name, c.IsActive, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return nil
}

// TouchLastMessage refreshes the denormalized preview. Concurrent senders race
// to last-write-wins; message order is tracked by the message rows.
func (r *ConversationRepo) TouchLastMessage(ctx context.Context, id int64, at time.Time, preview string) error {
	_, err := r.c.exec(ctx, `
		UPDATE conversations SET last_message_at = ?, last_message_text = ?, updated_at = ? WHERE id = ?
	`, at, preview, at, id)
	if err != nil {
		return fmt.Errorf("touch last message: %w", err)
	}
	return nil
}

// Delete removes the conversation with its statuses, messages and participants.
// Callers run it inside a transaction.
func (r *ConversationRepo) Delete(ctx context.Context, id int64) error {
	stmts := []struct {
		name  string
		query string
	}{
		{"statuses", `DELETE FROM message_statuses WHERE message_id IN (SELECT id FROM messages WHERE conversation_id = ?)`},
		{"messages", `DELETE FROM messages WHERE conversation_id = ?`},
		{"participants", `DELETE FROM conversation_participants WHERE conversation_id = ?`},
		{"conversation", `DELETE FROM conversations WHERE id = ?`},
	}
	for _, s := range stmts {
		if _, err := r.c.exec(ctx, s.query, id); err != nil {
			return fmt.Errorf("delete %s: %w", s.name, err)
		}
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	var typ string
	if err := row.Scan(
		&c.ID, &typ, &c.Name, &c.CreatedBy, &c.DirectKey, &c.IsActive,
		&c.LastMessageAt, &c.LastMessageText, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Type = domain.ConversationType(typ)
	return c, nil
}

func scanConversations(rows *sql.Rows) ([]*domain.Conversation, error) {
	defer rows.Close()
	var res []*domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
