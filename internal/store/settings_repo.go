package store

import (
	"context"
	"fmt"

	"chatcore/internal/domain"
)

// settingsRowID pins the singleton row.
const settingsRowID = 1

type SettingsRepo struct {
	c conn
}

var _ domain.SettingsRepository = (*SettingsRepo)(nil)

func (r *SettingsRepo) Get(ctx context.Context) (*domain.MessagingSettings, error) {
	s := &domain.MessagingSettings{}
	err := r.c.queryRow(ctx, `
		SELECT enabled, max_message_length, max_group_participants, updated_at
		FROM messaging_settings WHERE id = ?
	`, settingsRowID).Scan(&s.Enabled, &s.MaxMessageLength, &s.MaxGroupParticipants, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "messaging settings")
	}
	return s, nil
}

// CreateDefault inserts the singleton unless another caller already did.
func (r *SettingsRepo) CreateDefault(ctx context.Context, s *domain.MessagingSettings) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = Now()
	}
	_, err := r.c.exec(ctx, `
		INSERT INTO messaging_settings (id, enabled, max_message_length, max_group_participants, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, settingsRowID, s.Enabled, s.MaxMessageLength, s.MaxGroupParticipants, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create settings: %w", err)
	}
	return nil
}

func (r *SettingsRepo) Update(ctx context.Context, s *domain.MessagingSettings) error {
	s.UpdatedAt = Now()
	_, err := r.c.exec(ctx, `
		UPDATE messaging_settings
		SET enabled = ?, max_message_length = ?, max_group_participants = ?, updated_at = ?
		WHERE id = ?
	`, s.Enabled, s.MaxMessageLength, s.MaxGroupParticipants, s.UpdatedAt, settingsRowID)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}
