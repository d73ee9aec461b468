package httpserver

import (
	"net/http"

	"chatcore/internal/domain"
)

func (h *handlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := h.inbox.List(r.Context(), CurrentUser(r).ID, queryInt(r, "limit"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) getPreference(w http.ResponseWriter, r *http.Request) {
	p, err := h.inbox.Preference(r.Context(), CurrentUser(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) updatePreference(w http.ResponseWriter, r *http.Request) {
	var req domain.NotificationPreference
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.inbox.UpdatePreference(r.Context(), CurrentUser(r).ID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
