package service

import (
	"context"
	"errors"
	"fmt"

	"chatcore/internal/domain"
)

// SettingsService owns the messaging settings singleton. The row is created
// with the configured defaults the first time it is read.
type SettingsService struct {
	store    domain.Store
	defaults domain.MessagingSettings
}

func NewSettingsService(store domain.Store, defaults domain.MessagingSettings) *SettingsService {
	d := domain.DefaultSettings()
	if defaults.MaxMessageLength > 0 {
		d.MaxMessageLength = defaults.MaxMessageLength
	}
	if defaults.MaxGroupParticipants > 0 {
		d.MaxGroupParticipants = defaults.MaxGroupParticipants
	}
	return &SettingsService{store: store, defaults: d}
}

func (s *SettingsService) GetSettings(ctx context.Context) (*domain.MessagingSettings, error) {
	settings, err := s.store.Settings().Get(ctx)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	d := s.defaults
	if err := s.store.Settings().CreateDefault(ctx, &d); err != nil {
		return nil, err
	}
	return s.store.Settings().Get(ctx)
}

type UpdateSettingsInput struct {
	Enabled              *bool
	MaxMessageLength     *int
	MaxGroupParticipants *int
}

func (s *SettingsService) UpdateSettings(ctx context.Context, in UpdateSettingsInput) (*domain.MessagingSettings, error) {
	if in.MaxMessageLength != nil && *in.MaxMessageLength <= 0 {
		return nil, domain.Validation("max message length must be positive")
	}
	// A group needs its creator and at least one other member.
	if in.MaxGroupParticipants != nil && *in.MaxGroupParticipants < 2 {
		return nil, domain.Validation("max group participants must be at least 2")
	}

	settings, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if in.Enabled != nil {
		settings.Enabled = *in.Enabled
	}
	if in.MaxMessageLength != nil {
		settings.MaxMessageLength = *in.MaxMessageLength
	}
	if in.MaxGroupParticipants != nil {
		settings.MaxGroupParticipants = *in.MaxGroupParticipants
	}
	if err := s.store.Settings().Update(ctx, settings); err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return settings, nil
}

// ToggleMessagingSystem turns the whole messaging system on or off.
func (s *SettingsService) ToggleMessagingSystem(ctx context.Context, enabled bool) (*domain.MessagingSettings, error) {
	return s.UpdateSettings(ctx, UpdateSettingsInput{Enabled: &enabled})
}
