package httpserver

import (
	"net/http"

	"chatcore/internal/service"
)

type settingsUpdateRequest struct {
	Enabled              *bool `json:"enabled"`
	MaxMessageLength     *int  `json:"max_message_length"`
	MaxGroupParticipants *int  `json:"max_group_participants"`
}

func (h *handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.msg.GetSettings(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.msg.UpdateSettings(r.Context(), service.UpdateSettingsInput{
		Enabled:              req.Enabled,
		MaxMessageLength:     req.MaxMessageLength,
		MaxGroupParticipants: req.MaxGroupParticipants,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *handlers) toggleMessaging(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.msg.ToggleMessagingSystem(r.Context(), req.Enabled)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
