package service

import (
	"log/slog"

	"chatcore/internal/domain"
)

// MessagingService is the entry point used by the HTTP and websocket layers.
// It composes conversations, messages, read state and settings over one store.
type MessagingService struct {
	*SettingsService
	*ConversationService
	*MessageService
	*ReadService
}

// New wires the messaging services. hooks may be nil, in which case side
// effects are skipped.
func New(st domain.Store, defaults domain.MessagingSettings, hooks *Hooks, logger *slog.Logger) *MessagingService {
	if hooks == nil {
		hooks = NewHooks(nil, nil, logger, nil)
	}
	settings := NewSettingsService(st, defaults)
	return &MessagingService{
		SettingsService:     settings,
		ConversationService: NewConversationService(st, settings, hooks),
		MessageService:      NewMessageService(st, settings, hooks),
		ReadService:         NewReadService(st, hooks),
	}
}
