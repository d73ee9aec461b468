package httpserver

import (
	"net/http"
	"strings"

	"chatcore/internal/domain"
	"chatcore/internal/service"
)

type conversationCreateRequest struct {
	Type           domain.ConversationType `json:"type"`
	Name           *string                 `json:"name"`
	ParticipantIDs []int64                 `json:"participant_ids"`
}

func (h *handlers) createConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	conv, err := h.msg.CreateConversation(r.Context(), CurrentUser(r).ID, service.CreateConversationInput{
		Type:           domain.ConversationType(strings.ToUpper(string(req.Type))),
		Name:           req.Name,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *handlers) listConversations(w http.ResponseWriter, r *http.Request) {
	page, err := h.msg.GetUserConversations(r.Context(), CurrentUser(r).ID, service.ConversationListInput{
		Type:  domain.ConversationType(strings.ToUpper(r.URL.Query().Get("type"))),
		Page:  queryInt(r, "page"),
		Limit: queryInt(r, "limit"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) searchConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.msg.SearchConversations(r.Context(), CurrentUser(r).ID, r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *handlers) getConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conversationID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	conv, err := h.msg.GetConversation(r.Context(), id, CurrentUser(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type conversationUpdateRequest struct {
	Name *string `json:"name"`
}

func (h *handlers) updateConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conversationID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req conversationUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	conv, err := h.msg.UpdateConversation(r.Context(), id, CurrentUser(r).ID, service.UpdateConversationInput{Name: req.Name})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *handlers) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conversationID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.msg.DeleteConversation(r.Context(), id, CurrentUser(r).ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) leaveConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conversationID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.msg.LeaveConversation(r.Context(), id, CurrentUser(r).ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

func (h *handlers) muteConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conversationID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req muteRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.msg.MuteConversation(r.Context(), id, CurrentUser(r).ID, req.Muted); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"muted": req.Muted})
}

type addParticipantsRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

func (h *handlers) addParticipants(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conversationID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req addParticipantsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	conv, err := h.msg.AddParticipants(r.Context(), id, CurrentUser(r).ID, req.UserIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *handlers) removeParticipant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conversationID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	target, err := pathID(r, "userID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.msg.RemoveParticipant(r.Context(), id, CurrentUser(r).ID, target); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) markConversationRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conversationID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	updated, err := h.msg.MarkConversationAsRead(r.Context(), id, CurrentUser(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (h *handlers) conversationUnreadCount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conversationID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	n, err := h.msg.GetConversationUnreadCount(r.Context(), id, CurrentUser(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}
