package domain

// MessageState is the lifecycle state of a message.
type MessageState int

const (
	MessageActive MessageState = iota
	MessageEdited
	MessageDeleted
)

func (s MessageState) String() string {
	switch s {
	case MessageActive:
		return "active"
	case MessageEdited:
		return "edited"
	case MessageDeleted:
		return "deleted"
	}
	return "unknown"
}

// State derives the lifecycle state. Deletion wins over an earlier edit.
func (m *Message) State() MessageState {
	switch {
	case m.DeletedAt != nil:
		return MessageDeleted
	case m.EditedAt != nil:
		return MessageEdited
	default:
		return MessageActive
	}
}

// CanModify is the single gate for editing or deleting a message.
func (m *Message) CanModify(userID int64) error {
	if m.SenderID != userID {
		return Forbidden("only the sender can modify this message")
	}
	if m.State() == MessageDeleted {
		return Validation("message is already deleted")
	}
	if m.IsSystemMessage {
		return Forbidden("system messages cannot be modified")
	}
	return nil
}
