package domain

import (
	"context"
	"time"
)

// UserRepository is the identity lookup.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*User, error)
}

// ConversationFilter narrows ListForUser.
type ConversationFilter struct {
	Type   ConversationType
	Offset int
	Limit  int
}

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	// Create inserts c. For DIRECT conversations it returns ErrConflict when a
	// conversation for the same pair already exists.
	Create(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	// FindDirect returns the DIRECT conversation whose active participant set is exactly {a, b}.
	FindDirect(ctx context.Context, a, b int64) (*Conversation, error)
	ListForUser(ctx context.Context, userID int64, f ConversationFilter) ([]*Conversation, int, error)
	Search(ctx context.Context, userID int64, query string, limit int) ([]*Conversation, error)
	Update(ctx context.Context, c *Conversation) error
	TouchLastMessage(ctx context.Context, id int64, at time.Time, preview string) error
	Delete(ctx context.Context, id int64) error
}

// ParticipantRepository defines operations around conversation participants.
type ParticipantRepository interface {
	// Add inserts a participant row, reactivating a previously inactive one.
	Add(ctx context.Context, p *ConversationParticipant) error
	Get(ctx context.Context, conversationID, userID int64) (*ConversationParticipant, error)
	ListActive(ctx context.Context, conversationID int64) ([]*ConversationParticipant, error)
	ActiveUserIDs(ctx context.Context, conversationID int64) ([]int64, error)
	Deactivate(ctx context.Context, conversationID, userID int64, at time.Time) error
	SetMuted(ctx context.Context, conversationID, userID int64, muted bool) error
	// AdvanceReadCursor moves the read cursor forward only; older message ids are ignored.
	AdvanceReadCursor(ctx context.Context, conversationID, userID, messageID int64, at time.Time) error
}

// MessageQuery selects a window of a conversation's messages.
type MessageQuery struct {
	BeforeID int64
	AfterID  int64
	Offset   int
	Limit    int
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	// List returns non-deleted messages in ascending creation order with the
	// viewer's status attached.
	List(ctx context.Context, conversationID, viewerID int64, q MessageQuery) ([]*Message, error)
	// Edit and SoftDelete only touch live messages owned by senderID; a
	// deleted message yields a validation error.
	Edit(ctx context.Context, id, senderID int64, content string, at time.Time) error
	SoftDelete(ctx context.Context, id, senderID int64, at time.Time) error
	Search(ctx context.Context, userID int64, query string, conversationID int64, limit int) ([]*Message, error)
	LatestID(ctx context.Context, conversationID int64) (int64, error)
}

// StatusRepository defines persistence operations for per-recipient delivery status.
type StatusRepository interface {
	CreateBatch(ctx context.Context, statuses []*MessageStatus) error
	Get(ctx context.Context, messageID, userID int64) (*MessageStatus, error)
	ListForMessage(ctx context.Context, messageID int64) ([]*MessageStatus, error)
	MarkRead(ctx context.Context, messageID, userID int64, at time.Time) error
	MarkDelivered(ctx context.Context, messageID, userID int64, at time.Time) error
	MarkConversationRead(ctx context.Context, conversationID, userID int64, at time.Time) (int64, error)
	// CountUnread counts non-READ statuses of non-deleted, non-self-authored
	// messages in the user's active conversations; conversationID 0 means all.
	CountUnread(ctx context.Context, userID, conversationID int64) (int, error)
}

// SettingsRepository stores the messaging settings singleton.
type SettingsRepository interface {
	Get(ctx context.Context) (*MessagingSettings, error)
	CreateDefault(ctx context.Context, s *MessagingSettings) error
	Update(ctx context.Context, s *MessagingSettings) error
}

// PreferenceRepository is the notification preference lookup. A missing
// preference is reported as (nil, nil).
type PreferenceRepository interface {
	GetPreference(ctx context.Context, userID int64, category NotificationCategory) (*NotificationPreference, error)
}

// NotificationSink accepts notification records.
type NotificationSink interface {
	Create(ctx context.Context, n *Notification) error
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories interface {
	Users() UserRepository
	Conversations() ConversationRepository
	Participants() ParticipantRepository
	Messages() MessageRepository
	Statuses() StatusRepository
	Settings() SettingsRepository
}

// Store is a transactional store. fn's Repositories are bound to the
// transaction; returning an error rolls it back.
type Store interface {
	Repositories
	InTx(ctx context.Context, fn func(Repositories) error) error
}
