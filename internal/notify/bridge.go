// Package notify decides whether a new message produces a notification for a
// recipient and hands the record to one or more sinks.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"chatcore/internal/domain"
	"chatcore/internal/obs"
)

const (
	TypeNewMessage = "NEW_MESSAGE"

	previewMaxLen = 50
)

// Bridge consults the recipient's SOCIAL preference and do-not-disturb window
// before creating a notification.
type Bridge struct {
	prefs   domain.PreferenceRepository
	sink    domain.NotificationSink
	logger  *slog.Logger
	metrics *obs.Metrics

	now   func() time.Time
	newID func() string
}

func NewBridge(prefs domain.PreferenceRepository, sink domain.NotificationSink, logger *slog.Logger, metrics *obs.Metrics) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		prefs:   prefs,
		sink:    sink,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// NotifyNewMessage creates the notification for one recipient unless the
// recipient disabled SOCIAL notifications or is inside a DND window.
func (b *Bridge) NotifyNewMessage(ctx context.Context, n domain.MessageNotice) error {
	pref, err := b.prefs.GetPreference(ctx, n.RecipientID, domain.CategorySocial)
	if err != nil {
		b.metrics.Notification("failed")
		return fmt.Errorf("get preference of user %d: %w", n.RecipientID, err)
	}
	if pref != nil && !pref.Enabled {
		b.metrics.Notification("skipped_disabled")
		return nil
	}
	if pref != nil && pref.DNDEnabled && InDND(pref, b.now()) {
		b.metrics.Notification("skipped_dnd")
		b.logger.Debug("notification suppressed by dnd", "user_id", n.RecipientID, "message_id", n.MessageID)
		return nil
	}

	notification := &domain.Notification{
		ID:       b.newID(),
		UserID:   n.RecipientID,
		Type:     TypeNewMessage,
		Category: domain.CategorySocial,
		Title:    title(n),
		Content:  Preview(n.Content),
		Link:     "/messages/" + strconv.FormatInt(n.ConversationID, 10),
		Metadata: map[string]any{
			"senderId":       n.SenderID,
			"conversationId": n.ConversationID,
			"messageId":      n.MessageID,
		},
		CreatedAt: b.now().UTC(),
	}
	if err := b.sink.Create(ctx, notification); err != nil {
		b.metrics.Notification("failed")
		return fmt.Errorf("create notification for user %d: %w", n.RecipientID, err)
	}
	b.metrics.Notification("created")
	return nil
}

func title(n domain.MessageNotice) string {
	sender := n.SenderName
	if sender == "" {
		sender = "someone"
	}
	if n.ConversationName != nil && *n.ConversationName != "" {
		return fmt.Sprintf("%s in %s", sender, *n.ConversationName)
	}
	return "New message from " + sender
}

// Preview shortens content to at most 50 characters.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= previewMaxLen {
		return content
	}
	return string([]rune(content)[:previewMaxLen-3]) + "..."
}
