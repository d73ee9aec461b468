package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chatcore/internal/domain"
)

type MessageRepo struct {
	c conn
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `m.id, m.conversation_id, m.sender_id, m.content, m.type, m.metadata,
	m.is_system_message, m.edited_at, m.deleted_at, m.created_at`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = Now()
	}
	if m.Type == "" {
		m.Type = domain.MessageText
	}
	meta, err := encodeMetadata(m.Metadata)
	if err != nil {
		return err
	}
	err = r.c.queryRow(ctx, `
		INSERT INTO messages
			(conversation_id, sender_id, content, type, metadata, is_system_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, m.ConversationID, m.SenderID, m.Content, string(m.Type), meta, m.IsSystemMessage, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	m, err := scanMessage(r.c.queryRow(ctx, `
		SELECT `+messageColumns+` FROM messages m WHERE m.id = ?
	`, id))
	if err != nil {
		return nil, notFound(err, "message")
	}
	return m, nil
}

// List returns a window of non-deleted messages, oldest first. Without an
// AfterID the newest window is selected and reversed, like a chat scrollback.
func (r *MessageRepo) List(ctx context.Context, conversationID, viewerID int64, q domain.MessageQuery) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `, s.status, s.updated_at
		FROM messages m
		LEFT JOIN message_statuses s ON s.message_id = m.id AND s.user_id = ?
		WHERE m.conversation_id = ? AND m.deleted_at IS NULL`
	args := []any{viewerID, conversationID}
	if q.BeforeID > 0 {
		query += ` AND m.id < ?`
		args = append(args, q.BeforeID)
	}
	if q.AfterID > 0 {
		query += ` AND m.id > ?`
		args = append(args, q.AfterID)
	}
	ascending := q.AfterID > 0
	if ascending {
		query += ` ORDER BY m.created_at ASC, m.id ASC`
	} else {
		query += ` ORDER BY m.created_at DESC, m.id DESC`
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)

	rows, err := r.c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		var (
			status    sql.NullString
			updatedAt *time.Time
		)
		m, err := scanMessage(rows, &status, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if status.Valid {
			st := &domain.MessageStatus{MessageID: m.ID, UserID: viewerID, Status: domain.DeliveryStatus(status.String)}
			if updatedAt != nil {
				st.UpdatedAt = *updatedAt
			}
			m.Status = st
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !ascending {
		for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
			res[i], res[j] = res[j], res[i]
		}
	}
	return res, nil
}

// Edit rewrites the content of a live message owned by senderID. It fails
// with a validation error once the message is deleted, so a concurrent delete
// always wins.
func (r *MessageRepo) Edit(ctx context.Context, id, senderID int64, content string, at time.Time) error {
	res, err := r.c.exec(ctx, `
		UPDATE messages SET content = ?, edited_at = ?
		WHERE id = ? AND sender_id = ? AND deleted_at IS NULL
	`, content, at, id, senderID)
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return requireLive(res)
}

// SoftDelete replaces the content of a live message owned by senderID with
// the tombstone and drops its metadata.
func (r *MessageRepo) SoftDelete(ctx context.Context, id, senderID int64, at time.Time) error {
	res, err := r.c.exec(ctx, `
		UPDATE messages SET content = ?, metadata = NULL, deleted_at = ?
		WHERE id = ? AND sender_id = ? AND deleted_at IS NULL
	`, domain.DeletedMessageContent, at, id, senderID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return requireLive(res)
}

func requireLive(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.Validation("message is already deleted")
	}
	return nil
}

// Search matches non-deleted message content in the user's active conversations.
// conversationID 0 searches every conversation.
func (r *MessageRepo) Search(ctx context.Context, userID int64, query string, conversationID int64, limit int) ([]*domain.Message, error) {
	q := `
		SELECT ` + messageColumns + `
		FROM messages m
		JOIN conversation_participants cp
		  ON cp.conversation_id = m.conversation_id AND cp.user_id = ? AND cp.is_active = TRUE
		WHERE m.deleted_at IS NULL AND LOWER(m.content) LIKE LOWER(?) ESCAPE '\'`
	args := []any{userID, likePattern(query)}
	if conversationID > 0 {
		q += ` AND m.conversation_id = ?`
		args = append(args, conversationID)
	}
	q += ` ORDER BY m.created_at DESC, m.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.c.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()
	var res []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// LatestID returns the newest non-deleted message id of a conversation.
func (r *MessageRepo) LatestID(ctx context.Context, conversationID int64) (int64, error) {
	var id int64
	err := r.c.queryRow(ctx, `
		SELECT id FROM messages
		WHERE conversation_id = ? AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, conversationID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.NotFound("conversation has no messages")
	}
	if err != nil {
		return 0, fmt.Errorf("latest message: %w", err)
	}
	return id, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func scanMessage(row rowScanner, extra ...any) (*domain.Message, error) {
	m := &domain.Message{}
	var (
		typ  string
		meta sql.NullString
	)
	dest := append([]any{
		&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &typ, &meta,
		&m.IsSystemMessage, &m.EditedAt, &m.DeletedAt, &m.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	m.Type = domain.MessageType(typ)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of message %d: %w", m.ID, err)
		}
	}
	return m, nil
}

func encodeMetadata(meta map[string]any) (*string, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	s := string(b)
	return &s, nil
}
