package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"chatcore/internal/domain"
	"chatcore/internal/store"
)

const (
	defaultMessagePageSize = 50
	maxMessagePageSize     = 100
	messageSearchLimit     = 50
	lastMessagePreviewLen  = 100
)

type MessageService struct {
	store    domain.Store
	settings *SettingsService
	hooks    *Hooks
}

func NewMessageService(st domain.Store, settings *SettingsService, hooks *Hooks) *MessageService {
	return &MessageService{
		store:    st,
		settings: settings,
		hooks:    hooks,
	}
}

type SendMessageInput struct {
	ConversationID int64
	Content        string
	Type           domain.MessageType
	Metadata       map[string]any
}

// SendMessage persists a message together with one status row per active
// participant, then runs the notification and broadcast hooks.
func (s *MessageService) SendMessage(ctx context.Context, senderID int64, in SendMessageInput) (*domain.Message, error) {
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.Enabled {
		return nil, domain.Forbidden("messaging is disabled")
	}

	msgType := in.Type
	if msgType == "" {
		msgType = domain.MessageText
	}
	switch msgType {
	case domain.MessageText, domain.MessageImage, domain.MessageFile:
	case domain.MessageSystem:
		return nil, domain.Validation("system messages cannot be sent directly")
	default:
		return nil, domain.Validation("unknown message type %q", msgType)
	}
	if msgType == domain.MessageText && strings.TrimSpace(in.Content) == "" {
		return nil, domain.Validation("message content is required")
	}

	conv, err := requireMember(ctx, s.store, in.ConversationID, senderID)
	if err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(in.Content); n > settings.MaxMessageLength {
		return nil, domain.Validation("message is %d characters long, the limit is %d", n, settings.MaxMessageLength)
	}

	msg := &domain.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        in.Content,
		Type:           msgType,
		Metadata:       in.Metadata,
	}
	var participants []*domain.ConversationParticipant
	err = s.store.InTx(ctx, func(r domain.Repositories) error {
		var err error
		participants, err = persistMessage(ctx, r, conv, msg)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.hooks.MessageCreated(ctx, conv, msg, participants)
	return msg, nil
}

type MessageListInput struct {
	BeforeID int64
	AfterID  int64
	Page     int
	Limit    int
}

// GetMessages returns a window of messages oldest first with the caller's status.
func (s *MessageService) GetMessages(ctx context.Context, conversationID, userID int64, in MessageListInput) ([]*domain.Message, error) {
	if _, err := requireMember(ctx, s.store, conversationID, userID); err != nil {
		return nil, err
	}
	page, limit := normalizePage(in.Page, in.Limit, defaultMessagePageSize, maxMessagePageSize)
	msgs, err := s.store.Messages().List(ctx, conversationID, userID, domain.MessageQuery{
		BeforeID: in.BeforeID,
		AfterID:  in.AfterID,
		Offset:   (page - 1) * limit,
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	return msgs, nil
}

func (s *MessageService) GetMessage(ctx context.Context, id, userID int64) (*domain.Message, error) {
	msg, err := s.store.Messages().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := requireMember(ctx, s.store, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	status, err := s.store.Statuses().Get(ctx, id, userID)
	switch {
	case err == nil:
		msg.Status = status
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	return msg, nil
}

// UpdateMessage edits the content of the caller's own message.
func (s *MessageService) UpdateMessage(ctx context.Context, id, userID int64, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, domain.Validation("message content is required")
	}
	msg, err := s.modifiable(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(content); n > settings.MaxMessageLength {
		return nil, domain.Validation("message is %d characters long, the limit is %d", n, settings.MaxMessageLength)
	}

	now := store.Now()
	err = s.store.InTx(ctx, func(r domain.Repositories) error {
		if err := r.Messages().Edit(ctx, msg.ID, userID, content, now); err != nil {
			return err
		}
		return refreshPreview(ctx, r, msg, truncateRunes(content, lastMessagePreviewLen))
	})
	if err != nil {
		return nil, err
	}
	msg.Content = content
	msg.EditedAt = &now
	s.broadcastChange(ctx, EventMessageUpdated, msg)
	return msg, nil
}

// DeleteMessage soft-deletes the caller's own message. The content is
// replaced by a tombstone and cannot be restored.
func (s *MessageService) DeleteMessage(ctx context.Context, id, userID int64) error {
	msg, err := s.modifiable(ctx, id, userID)
	if err != nil {
		return err
	}

	now := store.Now()
	err = s.store.InTx(ctx, func(r domain.Repositories) error {
		if err := r.Messages().SoftDelete(ctx, msg.ID, userID, now); err != nil {
			return err
		}
		// Keep the preview from leaking the deleted content.
		return refreshPreview(ctx, r, msg, domain.DeletedMessageContent)
	})
	if err != nil {
		return err
	}
	msg.Content = domain.DeletedMessageContent
	msg.Metadata = nil
	msg.DeletedAt = &now
	s.broadcastChange(ctx, EventMessageDeleted, msg)
	return nil
}

// refreshPreview rewrites the conversation preview when msg is its latest message.
func refreshPreview(ctx context.Context, r domain.Repositories, msg *domain.Message, preview string) error {
	conv, err := r.Conversations().GetByID(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	if conv.LastMessageAt == nil || !conv.LastMessageAt.Equal(msg.CreatedAt) {
		return nil
	}
	return r.Conversations().TouchLastMessage(ctx, conv.ID, *conv.LastMessageAt, preview)
}

// SearchMessages matches content in the user's active conversations, newest
// first. conversationID 0 searches all of them.
func (s *MessageService) SearchMessages(ctx context.Context, userID int64, query string, conversationID int64) ([]*domain.Message, error) {
	if strings.TrimSpace(query) == "" {
		return []*domain.Message{}, nil
	}
	if conversationID > 0 {
		if _, err := requireMember(ctx, s.store, conversationID, userID); err != nil {
			return nil, err
		}
	}
	msgs, err := s.store.Messages().Search(ctx, userID, query, conversationID, messageSearchLimit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	return msgs, nil
}

func (s *MessageService) modifiable(ctx context.Context, id, userID int64) (*domain.Message, error) {
	msg, err := s.store.Messages().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := msg.CanModify(userID); err != nil {
		return nil, err
	}
	if _, err := requireMember(ctx, s.store, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *MessageService) broadcastChange(ctx context.Context, typ EventType, msg *domain.Message) {
	ids, err := s.store.Participants().ActiveUserIDs(ctx, msg.ConversationID)
	if err != nil {
		s.hooks.logger.Warn("resolve broadcast recipients", "conversation_id", msg.ConversationID, "err", err)
		return
	}
	s.hooks.Broadcast(ctx, Event{
		Type:           typ,
		ConversationID: msg.ConversationID,
		Message:        msg,
		Recipients:     ids,
	})
}

// ── helpers ──────────────────────────────────────────────────────────────────

func systemMessage(conversationID, authorID int64, content string) *domain.Message {
	return &domain.Message{
		ConversationID:  conversationID,
		SenderID:        authorID,
		Content:         content,
		Type:            domain.MessageSystem,
		IsSystemMessage: true,
	}
}

// persistMessage inserts msg, refreshes the conversation preview and creates
// the status snapshot: READ for the author, SENT for every other active
// participant. It returns that participant set.
func persistMessage(ctx context.Context, r domain.Repositories, conv *domain.Conversation, msg *domain.Message) ([]*domain.ConversationParticipant, error) {
	if err := r.Messages().Create(ctx, msg); err != nil {
		return nil, err
	}
	preview := truncateRunes(msg.Content, lastMessagePreviewLen)
	if err := r.Conversations().TouchLastMessage(ctx, conv.ID, msg.CreatedAt, preview); err != nil {
		return nil, err
	}
	conv.LastMessageAt = &msg.CreatedAt
	conv.LastMessageText = &preview

	participants, err := r.Participants().ListActive(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	statuses := make([]*domain.MessageStatus, 0, len(participants))
	for _, p := range participants {
		st := &domain.MessageStatus{
			MessageID: msg.ID,
			UserID:    p.UserID,
			Status:    domain.StatusSent,
			UpdatedAt: msg.CreatedAt,
		}
		if p.UserID == msg.SenderID {
			st.Status = domain.StatusRead
			msg.Status = st
		}
		statuses = append(statuses, st)
	}
	if err := r.Statuses().CreateBatch(ctx, statuses); err != nil {
		return nil, err
	}
	return participants, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
