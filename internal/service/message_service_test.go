package service_test

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/obs"
	"chatcore/internal/service"
	"chatcore/internal/store"
)

func TestSendMessage(t *testing.T) {
	env := newTestEnv(t)
	team := env.team(t)

	t.Run("StatusFanOut", func(t *testing.T) {
		msg := env.send(t, "A", team.ID, "hello team")
		require.NotNil(t, msg.Status)
		assert.Equal(t, domain.StatusRead, msg.Status.Status)

		assert.Equal(t, map[int64]domain.DeliveryStatus{
			env.id("A"): domain.StatusRead,
			env.id("B"): domain.StatusSent,
			env.id("C"): domain.StatusSent,
		}, env.statuses(t, msg.ID))

		conv, err := env.st.Conversations().GetByID(env.ctx, team.ID)
		require.NoError(t, err)
		assert.Equal(t, "hello team", *conv.LastMessageText)
		require.NotNil(t, conv.LastMessageAt)
		assert.True(t, conv.LastMessageAt.Equal(msg.CreatedAt))
	})

	t.Run("HooksRun", func(t *testing.T) {
		assert.ElementsMatch(t, []int64{env.id("B"), env.id("C")}, env.nt.Recipients())
		events := env.bc.Events()
		require.Len(t, events, 1)
		assert.Equal(t, service.EventMessageCreated, events[0].Type)
		assert.ElementsMatch(t, []int64{env.id("A"), env.id("B"), env.id("C")}, events[0].Recipients)
	})

	t.Run("TooLong", func(t *testing.T) {
		before, err := env.st.Messages().LatestID(env.ctx, team.ID)
		require.NoError(t, err)

		_, err = env.svc.SendMessage(env.ctx, env.id("A"), service.SendMessageInput{
			ConversationID: team.ID,
			Content:        strings.Repeat("x", 5000),
		})
		assert.ErrorIs(t, err, domain.ErrValidation)

		after, err := env.st.Messages().LatestID(env.ctx, team.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.Empty(t, env.statuses(t, after+1))
	})

	t.Run("NonParticipant", func(t *testing.T) {
		_, err := env.svc.SendMessage(env.ctx, env.id("D"), service.SendMessageInput{ConversationID: team.ID, Content: "hi"})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("UnknownConversation", func(t *testing.T) {
		_, err := env.svc.SendMessage(env.ctx, env.id("A"), service.SendMessageInput{ConversationID: 777, Content: "hi"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("EmptyContent", func(t *testing.T) {
		_, err := env.svc.SendMessage(env.ctx, env.id("A"), service.SendMessageInput{ConversationID: team.ID, Content: "  "})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("SystemTypeRejected", func(t *testing.T) {
		_, err := env.svc.SendMessage(env.ctx, env.id("A"), service.SendMessageInput{
			ConversationID: team.ID, Content: "fake", Type: domain.MessageSystem,
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("MetadataRoundTrip", func(t *testing.T) {
		msg, err := env.svc.SendMessage(env.ctx, env.id("B"), service.SendMessageInput{
			ConversationID: team.ID,
			Type:           domain.MessageFile,
			Metadata:       map[string]any{"file_name": "plan.pdf", "size": 1024},
		})
		require.NoError(t, err)

		got, err := env.svc.GetMessage(env.ctx, msg.ID, env.id("C"))
		require.NoError(t, err)
		assert.Equal(t, domain.MessageFile, got.Type)
		assert.Equal(t, "plan.pdf", got.Metadata["file_name"])
		assert.Equal(t, float64(1024), got.Metadata["size"])
		assert.Equal(t, domain.StatusSent, got.Status.Status)
	})

	t.Run("PreviewTruncated", func(t *testing.T) {
		long := strings.Repeat("é", 150)
		env.send(t, "C", team.ID, long)
		conv, err := env.st.Conversations().GetByID(env.ctx, team.ID)
		require.NoError(t, err)
		assert.Equal(t, 100, utf8.RuneCountInString(*conv.LastMessageText))
	})

	t.Run("MessagingDisabled", func(t *testing.T) {
		_, err := env.svc.ToggleMessagingSystem(env.ctx, false)
		require.NoError(t, err)
		_, err = env.svc.SendMessage(env.ctx, env.id("A"), service.SendMessageInput{ConversationID: team.ID, Content: "hi"})
		assert.ErrorIs(t, err, domain.ErrForbidden)

		_, err = env.svc.ToggleMessagingSystem(env.ctx, true)
		require.NoError(t, err)
		env.send(t, "A", team.ID, "back")
	})
}

func TestStatusSnapshotIsFixed(t *testing.T) {
	env := newTestEnv(t)
	team := env.team(t)
	msg := env.send(t, "A", team.ID, "before D joins")

	_, err := env.svc.AddParticipants(env.ctx, team.ID, env.id("A"), []int64{env.id("D")})
	require.NoError(t, err)

	statuses := env.statuses(t, msg.ID)
	assert.Len(t, statuses, 3)
	assert.NotContains(t, statuses, env.id("D"))

	// D sees the old message without a status and has nothing unread from it.
	count, err := env.svc.GetConversationUnreadCount(env.ctx, team.ID, env.id("D"))
	require.NoError(t, err)
	assert.Equal(t, 1, count) // the "A added D" system message
}

func TestGetMessages(t *testing.T) {
	env := newTestEnv(t)
	team := env.team(t)

	var ids []int64
	for i := 0; i < 7; i++ {
		ids = append(ids, env.send(t, []string{"A", "B", "C"}[i%3], team.ID, "m").ID)
	}

	t.Run("Ascending", func(t *testing.T) {
		msgs, err := env.svc.GetMessages(env.ctx, team.ID, env.id("B"), service.MessageListInput{})
		require.NoError(t, err)
		require.Len(t, msgs, 7)
		for i := 1; i < len(msgs); i++ {
			assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
			assert.Greater(t, msgs[i].ID, msgs[i-1].ID)
		}
		assert.Equal(t, domain.StatusRead, msgs[1].Status.Status)
		assert.Equal(t, domain.StatusSent, msgs[0].Status.Status)
	})

	t.Run("NewestPageFirst", func(t *testing.T) {
		msgs, err := env.svc.GetMessages(env.ctx, team.ID, env.id("A"), service.MessageListInput{Page: 1, Limit: 3})
		require.NoError(t, err)
		assert.Equal(t, ids[4:], messageIDs(msgs))

		msgs, err = env.svc.GetMessages(env.ctx, team.ID, env.id("A"), service.MessageListInput{Page: 3, Limit: 3})
		require.NoError(t, err)
		assert.Equal(t, ids[:1], messageIDs(msgs))
	})

	t.Run("Cursors", func(t *testing.T) {
		msgs, err := env.svc.GetMessages(env.ctx, team.ID, env.id("A"), service.MessageListInput{BeforeID: ids[3], Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, ids[1:3], messageIDs(msgs))

		msgs, err = env.svc.GetMessages(env.ctx, team.ID, env.id("A"), service.MessageListInput{AfterID: ids[3], Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, ids[4:6], messageIDs(msgs))
	})

	t.Run("NonParticipant", func(t *testing.T) {
		_, err := env.svc.GetMessages(env.ctx, team.ID, env.id("D"), service.MessageListInput{})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("GetMessageGate", func(t *testing.T) {
		_, err := env.svc.GetMessage(env.ctx, ids[0], env.id("D"))
		assert.ErrorIs(t, err, domain.ErrForbidden)
		_, err = env.svc.GetMessage(env.ctx, 99999, env.id("A"))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestUpdateAndDeleteMessage(t *testing.T) {
	env := newTestEnv(t)
	team := env.team(t)
	msg := env.send(t, "A", team.ID, "secret plan")

	t.Run("OnlySenderEdits", func(t *testing.T) {
		_, err := env.svc.UpdateMessage(env.ctx, msg.ID, env.id("B"), "hijack")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("Edit", func(t *testing.T) {
		edited, err := env.svc.UpdateMessage(env.ctx, msg.ID, env.id("A"), "revised plan")
		require.NoError(t, err)
		assert.Equal(t, domain.MessageEdited, edited.State())

		got, err := env.svc.GetMessage(env.ctx, msg.ID, env.id("B"))
		require.NoError(t, err)
		assert.Equal(t, "revised plan", got.Content)
		assert.NotNil(t, got.EditedAt)
	})

	t.Run("OnlySenderDeletes", func(t *testing.T) {
		err := env.svc.DeleteMessage(env.ctx, msg.ID, env.id("C"))
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, env.svc.DeleteMessage(env.ctx, msg.ID, env.id("A")))

		got, err := env.st.Messages().GetByID(env.ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.MessageDeleted, got.State())
		assert.Equal(t, domain.DeletedMessageContent, got.Content)

		msgs, err := env.svc.GetMessages(env.ctx, team.ID, env.id("B"), service.MessageListInput{})
		require.NoError(t, err)
		assert.Empty(t, msgs)

		found, err := env.svc.SearchMessages(env.ctx, env.id("B"), "plan", 0)
		require.NoError(t, err)
		assert.Empty(t, found)

		conv, err := env.st.Conversations().GetByID(env.ctx, team.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.DeletedMessageContent, *conv.LastMessageText)

		count, err := env.svc.GetUnreadCount(env.ctx, env.id("B"))
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("DeletedIsFinal", func(t *testing.T) {
		_, err := env.svc.UpdateMessage(env.ctx, msg.ID, env.id("A"), "undo")
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.ErrorIs(t, env.svc.DeleteMessage(env.ctx, msg.ID, env.id("A")), domain.ErrValidation)
	})

	t.Run("SystemMessagesAreImmutable", func(t *testing.T) {
		require.NoError(t, env.svc.LeaveConversation(env.ctx, team.ID, env.id("C")))
		msgs, err := env.svc.GetMessages(env.ctx, team.ID, env.id("A"), service.MessageListInput{})
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		_, err = env.svc.UpdateMessage(env.ctx, msgs[0].ID, env.id("C"), "rewrite")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	types := []service.EventType{}
	for _, ev := range env.bc.Events() {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, service.EventMessageUpdated)
	assert.Contains(t, types, service.EventMessageDeleted)
}

// interleavingStore runs afterGet once, right after the next message lookup
// outside a transaction returns.
type interleavingStore struct {
	*store.DB
	afterGet func()
}

func (s *interleavingStore) Messages() domain.MessageRepository {
	return interleavingMessages{MessageRepository: s.DB.Messages(), st: s}
}

type interleavingMessages struct {
	domain.MessageRepository
	st *interleavingStore
}

func (m interleavingMessages) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	msg, err := m.MessageRepository.GetByID(ctx, id)
	if f := m.st.afterGet; f != nil {
		m.st.afterGet = nil
		f()
	}
	return msg, err
}

func TestEditRacingDelete(t *testing.T) {
	env := newTestEnv(t)
	team := env.team(t)
	msg := env.send(t, "A", team.ID, "draft")

	st := &interleavingStore{DB: env.st}
	editor := service.New(st, domain.DefaultSettings(), nil, obs.Discard())
	st.afterGet = func() {
		require.NoError(t, env.svc.DeleteMessage(env.ctx, msg.ID, env.id("A")))
	}

	_, err := editor.UpdateMessage(env.ctx, msg.ID, env.id("A"), "resurrected")
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := env.st.Messages().GetByID(env.ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageDeleted, got.State())
	assert.Equal(t, domain.DeletedMessageContent, got.Content)
	assert.Nil(t, got.EditedAt)

	conv, err := env.st.Conversations().GetByID(env.ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeletedMessageContent, *conv.LastMessageText)
}

func TestDeleteRacingDelete(t *testing.T) {
	env := newTestEnv(t)
	team := env.team(t)
	msg := env.send(t, "A", team.ID, "twice")

	st := &interleavingStore{DB: env.st}
	other := service.New(st, domain.DefaultSettings(), nil, obs.Discard())
	st.afterGet = func() {
		require.NoError(t, env.svc.DeleteMessage(env.ctx, msg.ID, env.id("A")))
	}

	assert.ErrorIs(t, other.DeleteMessage(env.ctx, msg.ID, env.id("A")), domain.ErrValidation)
}

func TestEditRefreshesPreview(t *testing.T) {
	env := newTestEnv(t)
	team := env.team(t)
	first := env.send(t, "A", team.ID, "first")
	last := env.send(t, "B", team.ID, "see you at 5")

	_, err := env.svc.UpdateMessage(env.ctx, first.ID, env.id("A"), "first, edited")
	require.NoError(t, err)
	conv, err := env.st.Conversations().GetByID(env.ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, "see you at 5", *conv.LastMessageText)

	_, err = env.svc.UpdateMessage(env.ctx, last.ID, env.id("B"), "see you at 6")
	require.NoError(t, err)
	conv, err = env.st.Conversations().GetByID(env.ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, "see you at 6", *conv.LastMessageText)
	assert.True(t, conv.LastMessageAt.Equal(last.CreatedAt))

	found, err := env.svc.SearchConversations(env.ctx, env.id("C"), "at 5")
	require.NoError(t, err)
	assert.Empty(t, found)
	found, err = env.svc.SearchConversations(env.ctx, env.id("C"), "at 6")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestSearchMessages(t *testing.T) {
	env := newTestEnv(t)
	team := env.team(t)
	direct, err := env.svc.CreateConversation(env.ctx, env.id("A"), service.CreateConversationInput{
		Type:           domain.ConversationDirect,
		ParticipantIDs: []int64{env.id("D")},
	})
	require.NoError(t, err)

	env.send(t, "A", team.ID, "Deploy at noon")
	env.send(t, "B", team.ID, "deploy done")
	env.send(t, "D", direct.ID, "Can you DEPLOY my branch?")
	env.send(t, "A", team.ID, "lunch?")

	res, err := env.svc.SearchMessages(env.ctx, env.id("A"), "deploy", 0)
	require.NoError(t, err)
	assert.Len(t, res, 3)
	assert.Equal(t, "Can you DEPLOY my branch?", res[0].Content)

	res, err = env.svc.SearchMessages(env.ctx, env.id("A"), "deploy", team.ID)
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = env.svc.SearchMessages(env.ctx, env.id("B"), "deploy", 0)
	require.NoError(t, err)
	assert.Len(t, res, 2)

	_, err = env.svc.SearchMessages(env.ctx, env.id("D"), "deploy", team.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	t.Run("NonASCII", func(t *testing.T) {
		env.send(t, "A", team.ID, "Ärger im Büro")
		for _, q := range []string{"Ärger", "ärger", "BÜRO", "im bü"} {
			res, err := env.svc.SearchMessages(env.ctx, env.id("B"), q, 0)
			require.NoError(t, err)
			if assert.Len(t, res, 1, q) {
				assert.Equal(t, "Ärger im Büro", res[0].Content)
			}
		}

		convs, err := env.svc.SearchConversations(env.ctx, env.id("B"), "ÄRGER")
		require.NoError(t, err)
		assert.Len(t, convs, 1)
	})
}

func messageIDs(msgs []*domain.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
