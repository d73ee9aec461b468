package service

import (
	"context"
	"fmt"
	"log/slog"

	"chatcore/internal/domain"
	"chatcore/internal/obs"
)

// EventType names a realtime event pushed to connected sessions.
type EventType string

const (
	EventMessageCreated   EventType = "message.created"
	EventMessageUpdated   EventType = "message.updated"
	EventMessageDeleted   EventType = "message.deleted"
	EventConversationRead EventType = "conversation.read"
)

// Event is the envelope pushed to sessions. Recipients is resolved by the
// service from the active participant set at commit time.
type Event struct {
	Type           EventType       `json:"type"`
	ConversationID int64           `json:"conversation_id"`
	Message        *domain.Message `json:"message,omitempty"`
	UserID         int64           `json:"user_id,omitempty"`
	MessageID      int64           `json:"message_id,omitempty"`
	Recipients     []int64         `json:"-"`
}

// Broadcaster pushes events to live sessions. Implementations must not block
// on slow clients.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev Event) error
}

// Notifier decides and records the notification for one recipient.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, n domain.MessageNotice) error
}

// Hooks runs the post-commit side effects. Each hook runs in its own error
// boundary on a context detached from request cancellation, so neither a
// failed notification nor a failed push reaches the caller.
type Hooks struct {
	notifier    Notifier
	broadcaster Broadcaster
	logger      *slog.Logger
	metrics     *obs.Metrics
}

func NewHooks(notifier Notifier, broadcaster Broadcaster, logger *slog.Logger, metrics *obs.Metrics) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{
		notifier:    notifier,
		broadcaster: broadcaster,
		logger:      logger,
		metrics:     metrics,
	}
}

// MessageCreated notifies every active, unmuted recipient except the sender
// and broadcasts the message. System messages are broadcast only.
func (h *Hooks) MessageCreated(ctx context.Context, conv *domain.Conversation, msg *domain.Message, participants []*domain.ConversationParticipant) {
	if h == nil {
		return
	}
	h.metrics.MessageSent(string(msg.Type))

	if !msg.IsSystemMessage && h.notifier != nil {
		senderName := ""
		for _, p := range participants {
			if p.UserID == msg.SenderID {
				senderName = p.User.DisplayName()
				break
			}
		}
		for _, p := range participants {
			if p.UserID == msg.SenderID || !p.IsActive || p.IsMuted {
				continue
			}
			notice := domain.MessageNotice{
				RecipientID:      p.UserID,
				SenderID:         msg.SenderID,
				SenderName:       senderName,
				ConversationID:   conv.ID,
				ConversationName: conv.Name,
				MessageID:        msg.ID,
				Content:          msg.Content,
			}
			h.guard(ctx, "notify", msg, func(ctx context.Context) error {
				return h.notifier.NotifyNewMessage(ctx, notice)
			})
		}
	}

	h.Broadcast(ctx, Event{
		Type:           EventMessageCreated,
		ConversationID: conv.ID,
		Message:        msg,
		Recipients:     participantIDs(participants),
	})
}

// Broadcast pushes ev inside its own error boundary.
func (h *Hooks) Broadcast(ctx context.Context, ev Event) {
	if h == nil || h.broadcaster == nil {
		return
	}
	h.guard(ctx, "broadcast", ev.Message, func(ctx context.Context) error {
		return h.broadcaster.Broadcast(ctx, ev)
	})
}

func (h *Hooks) guard(ctx context.Context, hook string, msg *domain.Message, fn func(context.Context) error) {
	attrs := []any{slog.String("hook", hook)}
	if msg != nil {
		attrs = append(attrs,
			slog.Int64("conversation_id", msg.ConversationID),
			slog.Int64("message_id", msg.ID),
		)
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("post-commit hook panicked", append(attrs, slog.String("panic", fmt.Sprint(r)))...)
		}
	}()
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		h.logger.Warn("post-commit hook failed", append(attrs, slog.Any("err", err))...)
	}
}

func participantIDs(participants []*domain.ConversationParticipant) []int64 {
	ids := make([]int64, 0, len(participants))
	for _, p := range participants {
		if p.IsActive {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}
