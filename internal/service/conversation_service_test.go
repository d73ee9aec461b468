package service_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/service"
)

func TestCreateConversation(t *testing.T) {
	env := newTestEnv(t)

	t.Run("GroupWithName", func(t *testing.T) {
		conv := env.team(t)
		assert.Equal(t, domain.ConversationGroup, conv.Type)
		assert.Equal(t, "Team", *conv.Name)
		assert.Len(t, conv.Participants, 3)
		assert.True(t, conv.HasActiveParticipant(env.id("A")))
	})

	t.Run("GroupRequiresName", func(t *testing.T) {
		_, err := env.svc.CreateConversation(env.ctx, env.id("A"), service.CreateConversationInput{
			Type:           domain.ConversationGroup,
			Name:           strptr("   "),
			ParticipantIDs: []int64{env.id("B")},
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("DirectWithTwoParticipantIDs", func(t *testing.T) {
		_, err := env.svc.CreateConversation(env.ctx, env.id("A"), service.CreateConversationInput{
			Type:           domain.ConversationDirect,
			ParticipantIDs: []int64{env.id("B"), env.id("C")},
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("DirectWithSelf", func(t *testing.T) {
		_, err := env.svc.CreateConversation(env.ctx, env.id("A"), service.CreateConversationInput{
			Type:           domain.ConversationDirect,
			ParticipantIDs: []int64{env.id("A")},
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := env.svc.CreateConversation(env.ctx, env.id("A"), service.CreateConversationInput{
			Type:           domain.ConversationDirect,
			ParticipantIDs: []int64{9999},
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("UnknownType", func(t *testing.T) {
		_, err := env.svc.CreateConversation(env.ctx, env.id("A"), service.CreateConversationInput{
			Type:           "CHANNEL",
			ParticipantIDs: []int64{env.id("B")},
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestCreateDirectIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	direct := func(from, to string) *domain.Conversation {
		conv, err := env.svc.CreateConversation(env.ctx, env.id(from), service.CreateConversationInput{
			Type:           domain.ConversationDirect,
			ParticipantIDs: []int64{env.id(to)},
		})
		require.NoError(t, err)
		return conv
	}

	first := direct("A", "B")
	again := direct("A", "B")
	reverse := direct("B", "A")
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.ID, reverse.ID)
	assert.Len(t, reverse.Participants, 2)

	other := direct("A", "C")
	assert.NotEqual(t, first.ID, other.ID)

	t.Run("Concurrent", func(t *testing.T) {
		var (
			wg  sync.WaitGroup
			mu  sync.Mutex
			ids = map[int64]struct{}{}
		)
		for i := 0; i < 8; i++ {
			from, to := "C", "D"
			if i%2 == 1 {
				from, to = to, from
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				conv, err := env.svc.CreateConversation(env.ctx, env.id(from), service.CreateConversationInput{
					Type:           domain.ConversationDirect,
					ParticipantIDs: []int64{env.id(to)},
				})
				if assert.NoError(t, err) {
					mu.Lock()
					ids[conv.ID] = struct{}{}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Len(t, ids, 1)
	})

	t.Run("ParticipantCountInvariant", func(t *testing.T) {
		for _, id := range []int64{first.ID, other.ID} {
			active, err := env.st.Participants().ActiveUserIDs(env.ctx, id)
			require.NoError(t, err)
			assert.Len(t, active, 2)
		}
		err := env.svc.LeaveConversation(env.ctx, first.ID, env.id("A"))
		assert.ErrorIs(t, err, domain.ErrValidation)
		err = env.svc.RemoveParticipant(env.ctx, first.ID, env.id("A"), env.id("B"))
		assert.ErrorIs(t, err, domain.ErrValidation)
		_, err = env.svc.AddParticipants(env.ctx, first.ID, env.id("A"), []int64{env.id("C")})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestGroupParticipantLimit(t *testing.T) {
	env := newTestEnv(t)
	limit := 3
	_, err := env.svc.UpdateSettings(env.ctx, service.UpdateSettingsInput{MaxGroupParticipants: &limit})
	require.NoError(t, err)

	_, err = env.svc.CreateConversation(env.ctx, env.id("A"), service.CreateConversationInput{
		Type:           domain.ConversationGroup,
		Name:           strptr("Too big"),
		ParticipantIDs: []int64{env.id("B"), env.id("C"), env.id("D")},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	conv := env.team(t)
	_, err = env.svc.AddParticipants(env.ctx, conv.ID, env.id("A"), []int64{env.id("D")})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetConversation(t *testing.T) {
	env := newTestEnv(t)
	conv := env.team(t)

	got, err := env.svc.GetConversation(env.ctx, conv.ID, env.id("B"))
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.Len(t, got.Participants, 3)
	assert.Equal(t, "A", got.Participants[0].User.Name)

	_, err = env.svc.GetConversation(env.ctx, conv.ID, env.id("D"))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.svc.GetConversation(env.ctx, conv.ID+100, env.id("A"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLeaveConversation(t *testing.T) {
	env := newTestEnv(t)
	conv := env.team(t)

	require.NoError(t, env.svc.LeaveConversation(env.ctx, conv.ID, env.id("B")))

	p, err := env.st.Participants().Get(env.ctx, conv.ID, env.id("B"))
	require.NoError(t, err)
	assert.False(t, p.IsActive)
	assert.NotNil(t, p.LeftAt)

	msgs, err := env.svc.GetMessages(env.ctx, conv.ID, env.id("A"), service.MessageListInput{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "B left the conversation", msgs[0].Content)
	assert.Equal(t, env.id("B"), msgs[0].SenderID)
	assert.True(t, msgs[0].IsSystemMessage)
	assert.Equal(t, domain.MessageSystem, msgs[0].Type)

	_, err = env.svc.GetConversation(env.ctx, conv.ID, env.id("B"))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// System messages are broadcast but never notified.
	assert.Empty(t, env.nt.Recipients())
	events := env.bc.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, service.EventMessageCreated, events[0].Type)
	assert.ElementsMatch(t, []int64{env.id("A"), env.id("C")}, events[0].Recipients)
}

func TestRemoveParticipant(t *testing.T) {
	env := newTestEnv(t)
	conv := env.team(t)

	t.Run("NonCreatorRemovingOther", func(t *testing.T) {
		err := env.svc.RemoveParticipant(env.ctx, conv.ID, env.id("B"), env.id("C"))
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("NonParticipant", func(t *testing.T) {
		err := env.svc.RemoveParticipant(env.ctx, conv.ID, env.id("D"), env.id("D"))
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("CreatorRemovesOther", func(t *testing.T) {
		require.NoError(t, env.svc.RemoveParticipant(env.ctx, conv.ID, env.id("A"), env.id("C")))

		msgs, err := env.svc.GetMessages(env.ctx, conv.ID, env.id("A"), service.MessageListInput{})
		require.NoError(t, err)
		require.NotEmpty(t, msgs)
		last := msgs[len(msgs)-1]
		assert.Equal(t, "C was removed from the conversation", last.Content)
		assert.Equal(t, env.id("A"), last.SenderID)
	})

	t.Run("TargetAlreadyGone", func(t *testing.T) {
		err := env.svc.RemoveParticipant(env.ctx, conv.ID, env.id("A"), env.id("C"))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("SelfRemoval", func(t *testing.T) {
		require.NoError(t, env.svc.RemoveParticipant(env.ctx, conv.ID, env.id("B"), env.id("B")))

		msgs, err := env.svc.GetMessages(env.ctx, conv.ID, env.id("A"), service.MessageListInput{})
		require.NoError(t, err)
		assert.Equal(t, "B left the conversation", msgs[len(msgs)-1].Content)
	})
}

func TestAddParticipants(t *testing.T) {
	env := newTestEnv(t)
	conv := env.team(t)

	t.Run("AllAlreadyActive", func(t *testing.T) {
		_, err := env.svc.AddParticipants(env.ctx, conv.ID, env.id("A"), []int64{env.id("B"), env.id("C")})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := env.svc.AddParticipants(env.ctx, conv.ID, env.id("A"), []int64{4242})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("NonParticipantActor", func(t *testing.T) {
		_, err := env.svc.AddParticipants(env.ctx, conv.ID, env.id("D"), []int64{env.id("D")})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("AddsAndAnnounces", func(t *testing.T) {
		updated, err := env.svc.AddParticipants(env.ctx, conv.ID, env.id("B"), []int64{env.id("C"), env.id("D"), env.id("D")})
		require.NoError(t, err)
		assert.Len(t, updated.Participants, 4)

		msgs, err := env.svc.GetMessages(env.ctx, conv.ID, env.id("D"), service.MessageListInput{})
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "B added D to the conversation", msgs[0].Content)
		assert.Len(t, env.statuses(t, msgs[0].ID), 4)
	})

	t.Run("Rejoin", func(t *testing.T) {
		require.NoError(t, env.svc.LeaveConversation(env.ctx, conv.ID, env.id("D")))
		_, err := env.svc.AddParticipants(env.ctx, conv.ID, env.id("A"), []int64{env.id("D")})
		require.NoError(t, err)

		p, err := env.st.Participants().Get(env.ctx, conv.ID, env.id("D"))
		require.NoError(t, err)
		assert.True(t, p.IsActive)
		assert.Nil(t, p.LeftAt)
	})
}

func TestUpdateAndDeleteConversation(t *testing.T) {
	env := newTestEnv(t)
	conv := env.team(t)
	env.send(t, "B", conv.ID, "hello")

	_, err := env.svc.UpdateConversation(env.ctx, conv.ID, env.id("B"), service.UpdateConversationInput{Name: strptr("Mine")})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	updated, err := env.svc.UpdateConversation(env.ctx, conv.ID, env.id("A"), service.UpdateConversationInput{Name: strptr(" Core team ")})
	require.NoError(t, err)
	assert.Equal(t, "Core team", *updated.Name)

	assert.ErrorIs(t, env.svc.DeleteConversation(env.ctx, conv.ID, env.id("B")), domain.ErrForbidden)
	require.NoError(t, env.svc.DeleteConversation(env.ctx, conv.ID, env.id("A")))

	_, err = env.st.Conversations().GetByID(env.ctx, conv.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	count, err := env.svc.GetUnreadCount(env.ctx, env.id("C"))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMuteConversation(t *testing.T) {
	env := newTestEnv(t)
	conv := env.team(t)

	require.NoError(t, env.svc.MuteConversation(env.ctx, conv.ID, env.id("C"), true))
	env.send(t, "A", conv.ID, "standup in 5")
	assert.Equal(t, []int64{env.id("B")}, env.nt.Recipients())

	assert.ErrorIs(t, env.svc.MuteConversation(env.ctx, conv.ID, env.id("D"), true), domain.ErrForbidden)
}

func TestGetUserConversations(t *testing.T) {
	env := newTestEnv(t)
	team := env.team(t)
	direct, err := env.svc.CreateConversation(env.ctx, env.id("B"), service.CreateConversationInput{
		Type:           domain.ConversationDirect,
		ParticipantIDs: []int64{env.id("C")},
	})
	require.NoError(t, err)

	env.send(t, "C", direct.ID, "ping")
	env.send(t, "A", team.ID, "one")
	env.send(t, "A", team.ID, "two")

	page, err := env.svc.GetUserConversations(env.ctx, env.id("B"), service.ConversationListInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, team.ID, page.Items[0].ID)
	assert.Equal(t, 2, page.Items[0].UnreadCount)
	assert.Equal(t, direct.ID, page.Items[1].ID)
	assert.Equal(t, 1, page.Items[1].UnreadCount)
	assert.Len(t, page.Items[1].Participants, 2)

	page, err = env.svc.GetUserConversations(env.ctx, env.id("B"), service.ConversationListInput{Type: domain.ConversationDirect})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, direct.ID, page.Items[0].ID)

	page, err = env.svc.GetUserConversations(env.ctx, env.id("B"), service.ConversationListInput{Page: 2, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, direct.ID, page.Items[0].ID)

	page, err = env.svc.GetUserConversations(env.ctx, env.id("D"), service.ConversationListInput{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.Total)
}

func TestSearchConversations(t *testing.T) {
	env := newTestEnv(t)
	team := env.team(t)
	direct, err := env.svc.CreateConversation(env.ctx, env.id("A"), service.CreateConversationInput{
		Type:           domain.ConversationDirect,
		ParticipantIDs: []int64{env.id("D")},
	})
	require.NoError(t, err)
	env.send(t, "D", direct.ID, "Quarterly REPORT attached")

	ids := func(cs []*domain.Conversation) []int64 {
		out := make([]int64, len(cs))
		for i, c := range cs {
			out[i] = c.ID
		}
		return out
	}

	res, err := env.svc.SearchConversations(env.ctx, env.id("A"), "team")
	require.NoError(t, err)
	assert.Equal(t, []int64{team.ID}, ids(res))

	res, err = env.svc.SearchConversations(env.ctx, env.id("A"), "report")
	require.NoError(t, err)
	assert.Equal(t, []int64{direct.ID}, ids(res))

	res, err = env.svc.SearchConversations(env.ctx, env.id("A"), "d@example")
	require.NoError(t, err)
	assert.Equal(t, []int64{direct.ID}, ids(res))

	// The searcher's own identity matches nothing.
	res, err = env.svc.SearchConversations(env.ctx, env.id("A"), "a@example")
	require.NoError(t, err)
	assert.Empty(t, res)

	// Scoped to the caller's own conversations.
	res, err = env.svc.SearchConversations(env.ctx, env.id("D"), "team")
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = env.svc.SearchConversations(env.ctx, env.id("A"), "100%")
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = env.svc.SearchConversations(env.ctx, env.id("A"), strings.Repeat(" ", 3))
	require.NoError(t, err)
	assert.Empty(t, res)
}
