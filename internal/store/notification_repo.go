package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"chatcore/internal/domain"
)

// PreferenceRepo implements domain.PreferenceRepository.
type PreferenceRepo struct {
	c conn
}

var _ domain.PreferenceRepository = (*PreferenceRepo)(nil)

func (r *PreferenceRepo) GetPreference(ctx context.Context, userID int64, category domain.NotificationCategory) (*domain.NotificationPreference, error) {
	p := &domain.NotificationPreference{}
	var (
		cat  string
		days sql.NullString
	)
	err := r.c.queryRow(ctx, `
		SELECT user_id, category, enabled, dnd_enabled, dnd_start_time, dnd_end_time, dnd_days
		FROM notification_preferences WHERE user_id = ? AND category = ?
	`, userID, string(category)).Scan(
		&p.UserID, &cat, &p.Enabled, &p.DNDEnabled, &p.DNDStartTime, &p.DNDEndTime, &days,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preference: %w", err)
	}
	p.Category = domain.NotificationCategory(cat)
	if days.Valid && days.String != "" {
		if err := json.Unmarshal([]byte(days.String), &p.DNDDays); err != nil {
			return nil, fmt.Errorf("decode dnd days: %w", err)
		}
	}
	return p, nil
}

// Upsert stores a preference; used by seeding and tests.
func (r *PreferenceRepo) Upsert(ctx context.Context, p *domain.NotificationPreference) error {
	days, err := json.Marshal(p.DNDDays)
	if err != nil {
		return fmt.Errorf("encode dnd days: %w", err)
	}
	_, err = r.c.exec(ctx, `
		INSERT INTO notification_preferences
			(user_id, category, enabled, dnd_enabled, dnd_start_time, dnd_end_time, dnd_days)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, category) DO UPDATE SET
			enabled = excluded.enabled,
			dnd_enabled = excluded.dnd_enabled,
			dnd_start_time = excluded.dnd_start_time,
			dnd_end_time = excluded.dnd_end_time,
			dnd_days = excluded.dnd_days
	`, p.UserID, string(p.Category), p.Enabled, p.DNDEnabled, p.DNDStartTime, p.DNDEndTime, string(days))
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}

// NotificationRepo persists notifications; it is the default notification sink.
type NotificationRepo struct {
	c conn
}

var _ domain.NotificationSink = (*NotificationRepo)(nil)

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = Now()
	}
	meta, err := encodeMetadata(n.Metadata)
	if err != nil {
		return err
	}
	_, err = r.c.exec(ctx, `
		INSERT INTO notifications (id, user_id, type, category, title, content, link, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, n.Type, string(n.Category), n.Title, n.Content, n.Link, meta, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListForUser returns the newest notifications of a user.
func (r *NotificationRepo) ListForUser(ctx context.Context, userID int64, limit int) ([]*domain.Notification, error) {
	rows, err := r.c.query(ctx, `
		SELECT id, user_id, type, category, title, content, link, metadata, created_at
		FROM notifications WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	var res []*domain.Notification
	for rows.Next() {
		n := &domain.Notification{}
		var (
			cat  string
			meta sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &cat, &n.Title, &n.Content, &n.Link, &meta, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Category = domain.NotificationCategory(cat)
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &n.Metadata); err != nil {
				return nil, fmt.Errorf("decode notification metadata: %w", err)
			}
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
