package notify

import (
	"context"

	"chatcore/internal/domain"
)

type PreferenceStore interface {
	domain.PreferenceRepository
	Upsert(ctx context.Context, p *domain.NotificationPreference) error
}

type NotificationLister interface {
	ListForUser(ctx context.Context, userID int64, limit int) ([]*domain.Notification, error)
}

// Inbox serves a user's own notification records and messaging preference.
type Inbox struct {
	prefs PreferenceStore
	notes NotificationLister
}

func NewInbox(prefs PreferenceStore, notes NotificationLister) *Inbox {
	return &Inbox{prefs: prefs, notes: notes}
}

func (i *Inbox) List(ctx context.Context, userID int64, limit int) ([]*domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	res, err := i.notes.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = []*domain.Notification{}
	}
	return res, nil
}

// Preference returns the messaging preference, or the unrestricted default
// when the user never stored one.
func (i *Inbox) Preference(ctx context.Context, userID int64) (*domain.NotificationPreference, error) {
	p, err := i.prefs.GetPreference(ctx, userID, domain.CategorySocial)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &domain.NotificationPreference{UserID: userID, Category: domain.CategorySocial, Enabled: true}
	}
	return p, nil
}

func (i *Inbox) UpdatePreference(ctx context.Context, userID int64, p domain.NotificationPreference) (*domain.NotificationPreference, error) {
	if p.DNDEnabled {
		if _, ok := minuteOfDay(p.DNDStartTime); !ok {
			return nil, domain.Validation("dnd_start_time must be HH:MM")
		}
		if _, ok := minuteOfDay(p.DNDEndTime); !ok {
			return nil, domain.Validation("dnd_end_time must be HH:MM")
		}
	}
	for _, d := range p.DNDDays {
		if d < 0 || d > 6 {
			return nil, domain.Validation("dnd_days must be between 0 (Sunday) and 6 (Saturday)")
		}
	}
	p.UserID = userID
	p.Category = domain.CategorySocial
	if err := i.prefs.Upsert(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
