package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/obs"
	"chatcore/internal/service"
	"chatcore/internal/store"
	"chatcore/internal/store/sqlite"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []service.Event
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, ev service.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *recordingBroadcaster) Events() []service.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]service.Event(nil), b.events...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []domain.MessageNotice
}

func (n *recordingNotifier) NotifyNewMessage(_ context.Context, notice domain.MessageNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

func (n *recordingNotifier) Recipients() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]int64, len(n.notices))
	for i, x := range n.notices {
		ids[i] = x.RecipientID
	}
	return ids
}

type testEnv struct {
	ctx   context.Context
	st    *store.DB
	svc   *service.MessagingService
	bc    *recordingBroadcaster
	nt    *recordingNotifier
	users map[string]*domain.User
}

// newTestEnv migrates an in-memory database and seeds users A, B, C and D.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(ctx, db))

	st := sqlite.NewStore(db)
	env := &testEnv{
		ctx:   ctx,
		st:    st,
		bc:    &recordingBroadcaster{},
		nt:    &recordingNotifier{},
		users: map[string]*domain.User{},
	}
	hooks := service.NewHooks(env.nt, env.bc, obs.Discard(), nil)
	env.svc = service.New(st, domain.DefaultSettings(), hooks, obs.Discard())

	for _, name := range []string{"A", "B", "C", "D"} {
		u := &domain.User{Email: fmt.Sprintf("%s@example.com", name), Name: name}
		require.NoError(t, st.Users().Create(ctx, u))
		env.users[name] = u
	}
	return env
}

func (e *testEnv) id(name string) int64 { return e.users[name].ID }

// team creates GROUP "Team" owned by A with B and C.
func (e *testEnv) team(t *testing.T) *domain.Conversation {
	t.Helper()
	name := "Team"
	conv, err := e.svc.CreateConversation(e.ctx, e.id("A"), service.CreateConversationInput{
		Type:           domain.ConversationGroup,
		Name:           &name,
		ParticipantIDs: []int64{e.id("B"), e.id("C")},
	})
	require.NoError(t, err)
	return conv
}

func (e *testEnv) send(t *testing.T, sender string, convID int64, content string) *domain.Message {
	t.Helper()
	msg, err := e.svc.SendMessage(e.ctx, e.id(sender), service.SendMessageInput{
		ConversationID: convID,
		Content:        content,
	})
	require.NoError(t, err)
	return msg
}

func (e *testEnv) statuses(t *testing.T, messageID int64) map[int64]domain.DeliveryStatus {
	t.Helper()
	rows, err := e.st.Statuses().ListForMessage(e.ctx, messageID)
	require.NoError(t, err)
	out := make(map[int64]domain.DeliveryStatus, len(rows))
	for _, r := range rows {
		out[r.UserID] = r.Status
	}
	return out
}

func strptr(s string) *string { return &s }
