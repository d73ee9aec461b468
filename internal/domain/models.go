package domain

import (
	"strconv"
	"time"
)

// ConversationType distinguishes one-to-one from multi-user conversations.
type ConversationType string

const (
	ConversationDirect ConversationType = "DIRECT"
	ConversationGroup  ConversationType = "GROUP"
)

func (t ConversationType) Valid() bool {
	return t == ConversationDirect || t == ConversationGroup
}

// MessageType is the kind of payload a message carries.
type MessageType string

const (
	MessageText   MessageType = "TEXT"
	MessageSystem MessageType = "SYSTEM"
	MessageImage  MessageType = "IMAGE"
	MessageFile   MessageType = "FILE"
)

// DeliveryStatus is a per-recipient delivery marker. Values only move forward.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "SENT"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusRead      DeliveryStatus = "READ"
)

// Rank orders statuses so callers can compare progress.
func (s DeliveryStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// DeletedMessageContent replaces the content of a soft-deleted message.
const DeletedMessageContent = "This message was deleted"

// User is the identity record resolved for display names and notification text.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	AvatarURL *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DisplayName falls back to the email when no name is set.
func (u *User) DisplayName() string {
	if u == nil {
		return "Unknown user"
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Conversation represents a chat conversation (direct or group).
type Conversation struct {
	ID              int64            `db:"id" json:"id"`
	Type            ConversationType `db:"type" json:"type"`
	Name            *string          `db:"name" json:"name,omitempty"`
	CreatedBy       int64            `db:"created_by" json:"created_by"`
	DirectKey       *string          `db:"direct_key" json:"-"`
	IsActive        bool             `db:"is_active" json:"is_active"`
	LastMessageAt   *time.Time       `db:"last_message_at" json:"last_message_at,omitempty"`
	LastMessageText *string          `db:"last_message_text" json:"last_message_text,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`

	Participants []*ConversationParticipant `db:"-" json:"participants,omitempty"`
	UnreadCount  int                        `db:"-" json:"unread_count"`
}

// DirectPairKey is the order-independent key of a DIRECT conversation between a and b.
func DirectPairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return strconv.FormatInt(a, 10) + ":" + strconv.FormatInt(b, 10)
}

// HasActiveParticipant reports whether userID is among the loaded active participants.
func (c *Conversation) HasActiveParticipant(userID int64) bool {
	for _, p := range c.Participants {
		if p.UserID == userID && p.IsActive {
			return true
		}
	}
	return false
}

// ConversationParticipant represents the membership of a user in a conversation.
type ConversationParticipant struct {
	ConversationID    int64      `db:"conversation_id" json:"conversation_id"`
	UserID            int64      `db:"user_id" json:"user_id"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	IsMuted           bool       `db:"is_muted" json:"is_muted"`
	LastReadAt        *time.Time `db:"last_read_at" json:"last_read_at,omitempty"`
	LastReadMessageID *int64     `db:"last_read_message_id" json:"last_read_message_id,omitempty"`
	JoinedAt          time.Time  `db:"joined_at" json:"joined_at"`
	LeftAt            *time.Time `db:"left_at" json:"left_at,omitempty"`

	User *User `db:"-" json:"user,omitempty"`
}

// Message represents a single chat message.
type Message struct {
	ID              int64          `db:"id" json:"id"`
	ConversationID  int64          `db:"conversation_id" json:"conversation_id"`
	SenderID        int64          `db:"sender_id" json:"sender_id"`
	Content         string         `db:"content" json:"content"`
	Type            MessageType    `db:"type" json:"type"`
	Metadata        map[string]any `db:"metadata" json:"metadata,omitempty"`
	IsSystemMessage bool           `db:"is_system_message" json:"is_system_message"`
	EditedAt        *time.Time     `db:"edited_at" json:"edited_at,omitempty"`
	DeletedAt       *time.Time     `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`

	// Status is the requesting user's delivery status, when loaded.
	Status *MessageStatus `db:"-" json:"status,omitempty"`
}

// MessageStatus is the per-recipient delivery marker for one message.
type MessageStatus struct {
	MessageID int64          `db:"message_id" json:"message_id"`
	UserID    int64          `db:"user_id" json:"user_id"`
	Status    DeliveryStatus `db:"status" json:"status"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// MessagingSettings is the singleton configuration row of the messaging system.
type MessagingSettings struct {
	Enabled              bool      `db:"enabled" json:"enabled"`
	MaxMessageLength     int       `db:"max_message_length" json:"max_message_length"`
	MaxGroupParticipants int       `db:"max_group_participants" json:"max_group_participants"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultSettings returns the values used when the settings row is created lazily.
func DefaultSettings() MessagingSettings {
	return MessagingSettings{
		Enabled:              true,
		MaxMessageLength:     2000,
		MaxGroupParticipants: 50,
	}
}

// NotificationCategory groups notification preferences.
type NotificationCategory string

const CategorySocial NotificationCategory = "SOCIAL"

// NotificationPreference is a user's delivery preference for one category.
// DND times are "HH:MM" in server-local time; DNDDays uses 0=Sunday..6=Saturday.
type NotificationPreference struct {
	UserID       int64                `db:"user_id" json:"user_id"`
	Category     NotificationCategory `db:"category" json:"category"`
	Enabled      bool                 `db:"enabled" json:"enabled"`
	DNDEnabled   bool                 `db:"dnd_enabled" json:"dnd_enabled"`
	DNDStartTime string               `db:"dnd_start_time" json:"dnd_start_time"`
	DNDEndTime   string               `db:"dnd_end_time" json:"dnd_end_time"`
	DNDDays      []int                `db:"dnd_days" json:"dnd_days"`
}

// Notification is an in-app notification record.
type Notification struct {
	ID        string               `db:"id" json:"id"`
	UserID    int64                `db:"user_id" json:"user_id"`
	Type      string               `db:"type" json:"type"`
	Category  NotificationCategory `db:"category" json:"category"`
	Title     string               `db:"title" json:"title"`
	Content   string               `db:"content" json:"content"`
	Link      string               `db:"link" json:"link"`
	Metadata  map[string]any       `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}

// MessageNotice describes a new message for one recipient of the notification bridge.
type MessageNotice struct {
	RecipientID      int64
	SenderID         int64
	SenderName       string
	ConversationID   int64
	ConversationName *string
	MessageID        int64
	Content          string
}
