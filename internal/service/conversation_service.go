package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatcore/internal/domain"
	"chatcore/internal/store"
)

const (
	defaultConversationPageSize = 20
	maxConversationPageSize     = 100
	conversationSearchLimit     = 20
)

type ConversationService struct {
	store    domain.Store
	settings *SettingsService
	hooks    *Hooks
}

func NewConversationService(st domain.Store, settings *SettingsService, hooks *Hooks) *ConversationService {
	return &ConversationService{
		store:    st,
		settings: settings,
		hooks:    hooks,
	}
}

type CreateConversationInput struct {
	Type           domain.ConversationType
	Name           *string
	ParticipantIDs []int64
}

// CreateConversation creates a conversation with the creator as participant.
// DIRECT creation is idempotent per unordered pair of users.
func (s *ConversationService) CreateConversation(
	ctx context.Context,
	creatorID int64,
	in CreateConversationInput,
) (*domain.Conversation, error) {
	if !in.Type.Valid() {
		return nil, domain.Validation("conversation type must be DIRECT or GROUP")
	}

	switch in.Type {
	case domain.ConversationDirect:
		if len(in.ParticipantIDs) != 1 {
			return nil, domain.Validation("a direct conversation requires exactly one other participant")
		}
		if in.ParticipantIDs[0] == creatorID {
			return nil, domain.Validation("cannot start a direct conversation with yourself")
		}
		return s.createDirect(ctx, creatorID, in.ParticipantIDs[0])
	default:
		name := trimmedName(in.Name)
		if name == nil {
			return nil, domain.Validation("group name is required")
		}
		return s.createGroup(ctx, creatorID, *name, in.ParticipantIDs)
	}
}

func (s *ConversationService) createDirect(ctx context.Context, creatorID, otherID int64) (*domain.Conversation, error) {
	if err := s.requireUsers(ctx, []int64{otherID}); err != nil {
		return nil, err
	}

	var conv *domain.Conversation
	err := s.store.InTx(ctx, func(r domain.Repositories) error {
		existing, err := r.Conversations().FindDirect(ctx, creatorID, otherID)
		if err == nil {
			conv = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		key := domain.DirectPairKey(creatorID, otherID)
		c := &domain.Conversation{
			Type:      domain.ConversationDirect,
			CreatedBy: creatorID,
			DirectKey: &key,
			IsActive:  true,
		}
		err = r.Conversations().Create(ctx, c)
		if errors.Is(err, domain.ErrConflict) {
			// A concurrent request created the pair after our lookup.
			conv, err = r.Conversations().FindDirect(ctx, creatorID, otherID)
			return err
		}
		if err != nil {
			return err
		}
		for _, uid := range []int64{creatorID, otherID} {
			p := &domain.ConversationParticipant{ConversationID: c.ID, UserID: uid, JoinedAt: c.CreatedAt}
			if err := r.Participants().Add(ctx, p); err != nil {
				return err
			}
		}
		conv = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.withParticipants(ctx, conv)
}

func (s *ConversationService) createGroup(ctx context.Context, creatorID int64, name string, participantIDs []int64) (*domain.Conversation, error) {
	others := uniqueIDs(participantIDs, creatorID)
	if len(others) == 0 {
		return nil, domain.Validation("a group conversation requires at least one other participant")
	}
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if len(others)+1 > settings.MaxGroupParticipants {
		return nil, domain.Validation("a group conversation cannot have more than %d participants", settings.MaxGroupParticipants)
	}
	if err := s.requireUsers(ctx, others); err != nil {
		return nil, err
	}

	conv := &domain.Conversation{
		Type:      domain.ConversationGroup,
		Name:      &name,
		CreatedBy: creatorID,
		IsActive:  true,
	}
	err = s.store.InTx(ctx, func(r domain.Repositories) error {
		if err := r.Conversations().Create(ctx, conv); err != nil {
			return err
		}
		for _, uid := range append([]int64{creatorID}, others...) {
			p := &domain.ConversationParticipant{ConversationID: conv.ID, UserID: uid, JoinedAt: conv.CreatedAt}
			if err := r.Participants().Add(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.withParticipants(ctx, conv)
}

// GetConversation loads a conversation with its active participants. It is
// NotFound when absent and Forbidden when the requester is not an active participant.
func (s *ConversationService) GetConversation(ctx context.Context, id, requesterID int64) (*domain.Conversation, error) {
	conv, err := requireMember(ctx, s.store, id, requesterID)
	if err != nil {
		return nil, err
	}
	return s.withParticipants(ctx, conv)
}

type ConversationListInput struct {
	Type  domain.ConversationType
	Page  int
	Limit int
}

type ConversationPage struct {
	Items []*domain.Conversation `json:"items"`
	Total int                    `json:"total"`
	Page  int                    `json:"page"`
	Limit int                    `json:"limit"`
}

// GetUserConversations lists the user's active conversations, most recent first,
// each with its participants and the user's unread count.
func (s *ConversationService) GetUserConversations(ctx context.Context, userID int64, in ConversationListInput) (*ConversationPage, error) {
	if in.Type != "" && !in.Type.Valid() {
		return nil, domain.Validation("unknown conversation type %q", in.Type)
	}
	page, limit := normalizePage(in.Page, in.Limit, defaultConversationPageSize, maxConversationPageSize)

	items, total, err := s.store.Conversations().ListForUser(ctx, userID, domain.ConversationFilter{
		Type:   in.Type,
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}
	for _, c := range items {
		if c.Participants, err = s.store.Participants().ListActive(ctx, c.ID); err != nil {
			return nil, err
		}
		if c.UnreadCount, err = s.store.Statuses().CountUnread(ctx, userID, c.ID); err != nil {
			return nil, err
		}
	}
	if items == nil {
		items = []*domain.Conversation{}
	}
	return &ConversationPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

type UpdateConversationInput struct {
	Name *string
}

// UpdateConversation renames a group. Only the creator may update.
func (s *ConversationService) UpdateConversation(ctx context.Context, id, userID int64, in UpdateConversationInput) (*domain.Conversation, error) {
	conv, err := requireMember(ctx, s.store, id, userID)
	if err != nil {
		return nil, err
	}
	if conv.CreatedBy != userID {
		return nil, domain.Forbidden("only the creator can update this conversation")
	}
	if in.Name != nil {
		if conv.Type == domain.ConversationDirect {
			return nil, domain.Validation("direct conversations cannot be renamed")
		}
		name := trimmedName(in.Name)
		if name == nil {
			return nil, domain.Validation("group name is required")
		}
		conv.Name = name
	}
	if err := s.store.Conversations().Update(ctx, conv); err != nil {
		return nil, err
	}
	return s.withParticipants(ctx, conv)
}

// DeleteConversation hard-deletes a conversation with its messages and statuses.
// Only the creator may delete.
func (s *ConversationService) DeleteConversation(ctx context.Context, id, userID int64) error {
	conv, err := s.store.Conversations().GetByID(ctx, id)
	if err != nil {
		return err
	}
	if conv.CreatedBy != userID {
		return domain.Forbidden("only the creator can delete this conversation")
	}
	return s.store.InTx(ctx, func(r domain.Repositories) error {
		return r.Conversations().Delete(ctx, id)
	})
}

// LeaveConversation deactivates the caller's membership of a group.
func (s *ConversationService) LeaveConversation(ctx context.Context, id, userID int64) error {
	conv, err := requireMember(ctx, s.store, id, userID)
	if err != nil {
		return err
	}
	if conv.Type == domain.ConversationDirect {
		return domain.Validation("cannot leave a direct conversation")
	}
	return s.deactivate(ctx, conv, userID, userID)
}

// MuteConversation toggles notifications for the caller.
func (s *ConversationService) MuteConversation(ctx context.Context, id, userID int64, muted bool) error {
	if _, err := requireMember(ctx, s.store, id, userID); err != nil {
		return err
	}
	return s.store.Participants().SetMuted(ctx, id, userID, muted)
}

// AddParticipants adds users to a group and posts a system message naming them.
func (s *ConversationService) AddParticipants(ctx context.Context, id, actingUserID int64, userIDs []int64) (*domain.Conversation, error) {
	conv, err := requireMember(ctx, s.store, id, actingUserID)
	if err != nil {
		return nil, err
	}
	if conv.Type != domain.ConversationGroup {
		return nil, domain.Validation("participants can only be added to group conversations")
	}

	active, err := s.store.Participants().ActiveUserIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	isActive := make(map[int64]bool, len(active))
	for _, uid := range active {
		isActive[uid] = true
	}
	var added []int64
	for _, uid := range uniqueIDs(userIDs, 0) {
		if !isActive[uid] {
			added = append(added, uid)
		}
	}
	if len(added) == 0 {
		return nil, domain.Validation("all users are already participants")
	}

	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if len(active)+len(added) > settings.MaxGroupParticipants {
		return nil, domain.Validation("a group conversation cannot have more than %d participants", settings.MaxGroupParticipants)
	}

	users, err := s.store.Users().GetByIDs(ctx, added)
	if err != nil {
		return nil, err
	}
	if len(users) != len(added) {
		return nil, domain.NotFound("one or more users not found")
	}
	actor, err := s.store.Users().GetByID(ctx, actingUserID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.DisplayName()
	}

	var (
		msg          *domain.Message
		participants []*domain.ConversationParticipant
	)
	err = s.store.InTx(ctx, func(r domain.Repositories) error {
		now := store.Now()
		for _, uid := range added {
			if err := r.Participants().Add(ctx, &domain.ConversationParticipant{ConversationID: id, UserID: uid, JoinedAt: now}); err != nil {
				return err
			}
		}
		msg = systemMessage(conv.ID, actingUserID,
			fmt.Sprintf("%s added %s to the conversation", actor.DisplayName(), strings.Join(names, ", ")))
		participants, err = persistMessage(ctx, r, conv, msg)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.hooks.MessageCreated(ctx, conv, msg, participants)

	conv.Participants = participants
	return conv, nil
}

// RemoveParticipant deactivates target. The creator may remove anyone; any
// participant may remove themself.
func (s *ConversationService) RemoveParticipant(ctx context.Context, id, actingUserID, targetID int64) error {
	conv, err := requireMember(ctx, s.store, id, actingUserID)
	if err != nil {
		return err
	}
	if conv.Type != domain.ConversationGroup {
		return domain.Validation("participants can only be removed from group conversations")
	}
	if actingUserID != targetID && conv.CreatedBy != actingUserID {
		return domain.Forbidden("only the creator can remove other participants")
	}
	target, err := s.store.Participants().Get(ctx, id, targetID)
	if err != nil {
		return err
	}
	if !target.IsActive {
		return domain.NotFound("participant not found")
	}
	return s.deactivate(ctx, conv, actingUserID, targetID)
}

// deactivate marks targetID inactive and posts the matching system message,
// authored by actingUserID.
func (s *ConversationService) deactivate(ctx context.Context, conv *domain.Conversation, actingUserID, targetID int64) error {
	target, err := s.store.Users().GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	content := target.DisplayName() + " left the conversation"
	if actingUserID != targetID {
		content = target.DisplayName() + " was removed from the conversation"
	}

	var (
		msg          *domain.Message
		participants []*domain.ConversationParticipant
	)
	err = s.store.InTx(ctx, func(r domain.Repositories) error {
		if err := r.Participants().Deactivate(ctx, conv.ID, targetID, store.Now()); err != nil {
			return err
		}
		msg = systemMessage(conv.ID, actingUserID, content)
		participants, err = persistMessage(ctx, r, conv, msg)
		return err
	})
	if err != nil {
		return err
	}
	s.hooks.MessageCreated(ctx, conv, msg, participants)
	// The departed user's other sessions still see the final message.
	s.hooks.Broadcast(ctx, Event{
		Type:           EventMessageCreated,
		ConversationID: conv.ID,
		Message:        msg,
		Recipients:     []int64{targetID},
	})
	return nil
}

// SearchConversations matches name, last message preview and the other
// participants' name or email in the user's active conversations.
func (s *ConversationService) SearchConversations(ctx context.Context, userID int64, query string) ([]*domain.Conversation, error) {
	if strings.TrimSpace(query) == "" {
		return []*domain.Conversation{}, nil
	}
	res, err := s.store.Conversations().Search(ctx, userID, query, conversationSearchLimit)
	if err != nil {
		return nil, err
	}
	for _, c := range res {
		if c.Participants, err = s.store.Participants().ListActive(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	if res == nil {
		res = []*domain.Conversation{}
	}
	return res, nil
}

func (s *ConversationService) withParticipants(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	participants, err := s.store.Participants().ListActive(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	conv.Participants = participants
	return conv, nil
}

func (s *ConversationService) requireUsers(ctx context.Context, ids []int64) error {
	users, err := s.store.Users().GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(users) != len(ids) {
		return domain.NotFound("one or more users not found")
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

// requireMember is the gate used by every operation touching a conversation.
func requireMember(ctx context.Context, r domain.Repositories, conversationID, userID int64) (*domain.Conversation, error) {
	conv, err := r.Conversations().GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	p, err := r.Participants().Get(ctx, conversationID, userID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !p.IsActive) {
		return nil, domain.Forbidden("not a participant in this conversation")
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// uniqueIDs drops duplicates and exclude, keeping the first-seen order.
func uniqueIDs(ids []int64, exclude int64) []int64 {
	seen := map[int64]struct{}{exclude: {}}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func trimmedName(name *string) *string {
	if name == nil {
		return nil
	}
	n := strings.TrimSpace(*name)
	if n == "" {
		return nil
	}
	return &n
}

func normalizePage(page, limit, def, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return page, limit
}
