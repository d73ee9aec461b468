package store

import (
	"context"
	"fmt"
	"time"

	"chatcore/internal/domain"
)

type ParticipantRepo struct {
	c conn
}

var _ domain.ParticipantRepository = (*ParticipantRepo)(nil)

const participantColumns = `cp.conversation_id, cp.user_id, cp.is_active, cp.is_muted,
	cp.last_read_at, cp.last_read_message_id, cp.joined_at, cp.left_at`

func (r *ParticipantRepo) Add(ctx context.Context, p *domain.ConversationParticipant) error {
	if p.JoinedAt.IsZero() {
		p.JoinedAt = Now()
	}
	p.IsActive = true
	p.LeftAt = nil
	_, err := r.c.exec(ctx, `
		INSERT INTO conversation_participants (conversation_id, user_id, is_active, is_muted, joined_at)
		VALUES (?, ?, TRUE, ?, ?)
		ON CONFLICT (conversation_id, user_id)
		DO UPDATE SET is_active = TRUE, left_at = NULL, joined_at = excluded.joined_at
	`, p.ConversationID, p.UserID, p.IsMuted, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("insert participant %d: %w", p.UserID, err)
	}
	return nil
}

func (r *ParticipantRepo) Get(ctx context.Context, conversationID, userID int64) (*domain.ConversationParticipant, error) {
	p := &domain.ConversationParticipant{}
	err := r.c.queryRow(ctx, `
		SELECT `+participantColumns+`
		FROM conversation_participants cp
		WHERE cp.conversation_id = ? AND cp.user_id = ?
	`, conversationID, userID).Scan(participantDest(p)...)
	if err != nil {
		return nil, notFound(err, "participant")
	}
	return p, nil
}

// ListActive returns the active participants with their user records.
func (r *ParticipantRepo) ListActive(ctx context.Context, conversationID int64) ([]*domain.ConversationParticipant, error) {
	rows, err := r.c.query(ctx, `
		SELECT `+participantColumns+`, u.id, u.email, u.name, u.avatar_url, u.created_at
		FROM conversation_participants cp
		JOIN users u ON u.id = cp.user_id
		WHERE cp.conversation_id = ? AND cp.is_active = TRUE
		ORDER BY cp.joined_at ASC, cp.user_id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var res []*domain.ConversationParticipant
	for rows.Next() {
		p := &domain.ConversationParticipant{User: &domain.User{}}
		dest := append(participantDest(p),
			&p.User.ID, &p.User.Email, &p.User.Name, &p.User.AvatarURL, &p.User.CreatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ActiveUserIDs returns just the active user IDs (useful for broadcasts
// without loading full User structs).
func (r *ParticipantRepo) ActiveUserIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	rows, err := r.c.query(ctx, `
		SELECT user_id FROM conversation_participants
		WHERE conversation_id = ? AND is_active = TRUE
		ORDER BY user_id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list participant ids: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ParticipantRepo) Deactivate(ctx context.Context, conversationID, userID int64, at time.Time) error {
	_, err := r.c.exec(ctx, `
		UPDATE conversation_participants SET is_active = FALSE, left_at = ?
		WHERE conversation_id = ? AND user_id = ? AND is_active = TRUE
	`, at, conversationID, userID)
	if err != nil {
		return fmt.Errorf("deactivate participant: %w", err)
	}
	return nil
}

func (r *ParticipantRepo) SetMuted(ctx context.Context, conversationID, userID int64, muted bool) error {
	_, err := r.c.exec(ctx, `
		UPDATE conversation_participants SET is_muted = ?
		WHERE conversation_id = ? AND user_id = ?
	`, muted, conversationID, userID)
	if err != nil {
		return fmt.Errorf("set muted: %w", err)
	}
	return nil
}

func (r *ParticipantRepo) AdvanceReadCursor(ctx context.Context, conversationID, userID, messageID int64, at time.Time) error {
	_, err := r.c.exec(ctx, `
		UPDATE conversation_participants SET last_read_at = ?, last_read_message_id = ?
		WHERE conversation_id = ? AND user_id = ?
		  AND (last_read_message_id IS NULL OR last_read_message_id < ?)
	`, at, messageID, conversationID, userID, messageID)
	if err != nil {
		return fmt.Errorf("advance read cursor: %w", err)
	}
	return nil
}

func participantDest(p *domain.ConversationParticipant) []any {
	return []any{
		&p.ConversationID, &p.UserID, &p.IsActive, &p.IsMuted,
		&p.LastReadAt, &p.LastReadMessageID, &p.JoinedAt, &p.LeftAt,
	}
}
