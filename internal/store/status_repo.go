package store

import (
	"context"
	"fmt"
	"time"

	"chatcore/internal/domain"
)

// StatusRepo stores per-recipient delivery status. Writes only move a status
// forward, so repeated or reordered calls from several devices converge.
type StatusRepo struct {
	c conn
}

var _ domain.StatusRepository = (*StatusRepo)(nil)

func (r *StatusRepo) CreateBatch(ctx context.Context, statuses []*domain.MessageStatus) error {
	for _, s := range statuses {
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = Now()
		}
		if _, err := r.c.exec(ctx, `
			INSERT INTO message_statuses (message_id, user_id, status, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (message_id, user_id) DO NOTHING
		`, s.MessageID, s.UserID, string(s.Status), s.UpdatedAt); err != nil {
			return fmt.Errorf("insert status %d/%d: %w", s.MessageID, s.UserID, err)
		}
	}
	return nil
}

func (r *StatusRepo) Get(ctx context.Context, messageID, userID int64) (*domain.MessageStatus, error) {
	s := &domain.MessageStatus{}
	var status string
	err := r.c.queryRow(ctx, `
		SELECT message_id, user_id, status, updated_at
		FROM message_statuses WHERE message_id = ? AND user_id = ?
	`, messageID, userID).Scan(&s.MessageID, &s.UserID, &status, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "message status")
	}
	s.Status = domain.DeliveryStatus(status)
	return s, nil
}

func (r *StatusRepo) ListForMessage(ctx context.Context, messageID int64) ([]*domain.MessageStatus, error) {
	rows, err := r.c.query(ctx, `
		SELECT message_id, user_id, status, updated_at
		FROM message_statuses WHERE message_id = ?
		ORDER BY user_id ASC
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	defer rows.Close()
	var res []*domain.MessageStatus
	for rows.Next() {
		s := &domain.MessageStatus{}
		var status string
		if err := rows.Scan(&s.MessageID, &s.UserID, &status, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		s.Status = domain.DeliveryStatus(status)
		res = append(res, s)
	}
	return res, rows.Err()
}

// MarkRead upserts READ. An existing READ row keeps its original timestamp.
func (r *StatusRepo) MarkRead(ctx context.Context, messageID, userID int64, at time.Time) error {
	read := string(domain.StatusRead)
	_, err := r.c.exec(ctx, `
		INSERT INTO message_statuses (message_id, user_id, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
		WHERE message_statuses.status <> ?
	`, messageID, userID, read, at, read)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// MarkDelivered moves SENT to DELIVERED; any other state is left untouched.
func (r *StatusRepo) MarkDelivered(ctx context.Context, messageID, userID int64, at time.Time) error {
	_, err := r.c.exec(ctx, `
		UPDATE message_statuses SET status = ?, updated_at = ?
		WHERE message_id = ? AND user_id = ? AND status = ?
	`, string(domain.StatusDelivered), at, messageID, userID, string(domain.StatusSent))
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// MarkConversationRead marks every non-READ status of the user for messages
// authored by others in the conversation.
func (r *StatusRepo) MarkConversationRead(ctx context.Context, conversationID, userID int64, at time.Time) (int64, error) {
	read := string(domain.StatusRead)
	res, err := r.c.exec(ctx, `
		UPDATE message_statuses SET status = ?, updated_at = ?
		WHERE user_id = ? AND status <> ?
		  AND message_id IN (
			  SELECT id FROM messages WHERE conversation_id = ? AND sender_id <> ?
		  )
	`, read, at, userID, read, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (r *StatusRepo) CountUnread(ctx context.Context, userID, conversationID int64) (int, error) {
	q := `
		SELECT COUNT(*) FROM message_statuses s
		JOIN messages m ON m.id = s.message_id
		JOIN conversation_participants cp
		  ON cp.conversation_id = m.conversation_id AND cp.user_id = s.user_id AND cp.is_active = TRUE
		WHERE s.user_id = ? AND s.status <> ? AND m.deleted_at IS NULL AND m.sender_id <> ?`
	args := []any{userID, string(domain.StatusRead), userID}
	if conversationID > 0 {
		q += ` AND m.conversation_id = ?`
		args = append(args, conversationID)
	}
	var count int
	if err := r.c.queryRow(ctx, q, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}
