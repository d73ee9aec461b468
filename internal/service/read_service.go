package service

import (
	"context"
	"errors"

	"chatcore/internal/domain"
	"chatcore/internal/store"
)

// ReadService maintains read state. Unread counts are always recomputed from
// status rows, so reads from several devices converge without lost updates.
type ReadService struct {
	store domain.Store
	hooks *Hooks
}

func NewReadService(st domain.Store, hooks *Hooks) *ReadService {
	return &ReadService{store: st, hooks: hooks}
}

// MarkMessageAsRead upserts READ for the caller and advances the read cursor.
func (s *ReadService) MarkMessageAsRead(ctx context.Context, messageID, userID int64) error {
	msg, err := s.store.Messages().GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if _, err := requireMember(ctx, s.store, msg.ConversationID, userID); err != nil {
		return err
	}

	var recipients []int64
	err = s.store.InTx(ctx, func(r domain.Repositories) error {
		now := store.Now()
		if err := r.Statuses().MarkRead(ctx, messageID, userID, now); err != nil {
			return err
		}
		if err := r.Participants().AdvanceReadCursor(ctx, msg.ConversationID, userID, messageID, now); err != nil {
			return err
		}
		recipients, err = r.Participants().ActiveUserIDs(ctx, msg.ConversationID)
		return err
	})
	if err != nil {
		return err
	}
	s.hooks.Broadcast(ctx, Event{
		Type:           EventConversationRead,
		ConversationID: msg.ConversationID,
		UserID:         userID,
		MessageID:      messageID,
		Recipients:     recipients,
	})
	return nil
}

// MarkConversationAsRead marks every message authored by others as READ for
// the caller and moves the read cursor to the newest message. It returns the
// number of statuses changed.
func (s *ReadService) MarkConversationAsRead(ctx context.Context, conversationID, userID int64) (int64, error) {
	if _, err := requireMember(ctx, s.store, conversationID, userID); err != nil {
		return 0, err
	}

	var (
		updated    int64
		latestID   int64
		recipients []int64
	)
	err := s.store.InTx(ctx, func(r domain.Repositories) error {
		now := store.Now()
		var err error
		if updated, err = r.Statuses().MarkConversationRead(ctx, conversationID, userID, now); err != nil {
			return err
		}
		latestID, err = r.Messages().LatestID(ctx, conversationID)
		if errors.Is(err, domain.ErrNotFound) {
			latestID = 0
		} else if err != nil {
			return err
		} else if err := r.Participants().AdvanceReadCursor(ctx, conversationID, userID, latestID, now); err != nil {
			return err
		}
		recipients, err = r.Participants().ActiveUserIDs(ctx, conversationID)
		return err
	})
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		s.hooks.Broadcast(ctx, Event{
			Type:           EventConversationRead,
			ConversationID: conversationID,
			UserID:         userID,
			MessageID:      latestID,
			Recipients:     recipients,
		})
	}
	return updated, nil
}

// MarkMessageAsDelivered moves the caller's status from SENT to DELIVERED.
func (s *ReadService) MarkMessageAsDelivered(ctx context.Context, messageID, userID int64) error {
	msg, err := s.store.Messages().GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if _, err := requireMember(ctx, s.store, msg.ConversationID, userID); err != nil {
		return err
	}
	return s.store.Statuses().MarkDelivered(ctx, messageID, userID, store.Now())
}

// GetUnreadCount counts unread messages across all the user's active conversations.
func (s *ReadService) GetUnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.store.Statuses().CountUnread(ctx, userID, 0)
}

func (s *ReadService) GetConversationUnreadCount(ctx context.Context, conversationID, userID int64) (int, error) {
	if _, err := requireMember(ctx, s.store, conversationID, userID); err != nil {
		return 0, err
	}
	return s.store.Statuses().CountUnread(ctx, userID, conversationID)
}
