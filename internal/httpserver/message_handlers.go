package httpserver

import (
	"net/http"
	"strings"

	"chatcore/internal/domain"
	"chatcore/internal/service"
)

type messageCreateRequest struct {
	Content  string             `json:"content"`
	Type     domain.MessageType `json:"type"`
	Metadata map[string]any     `json:"metadata"`
}

func (h *handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	convID, err := pathID(r, "conversationID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req messageCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	msg, err := h.msg.SendMessage(r.Context(), CurrentUser(r).ID, service.SendMessageInput{
		ConversationID: convID,
		Content:        req.Content,
		Type:           domain.MessageType(strings.ToUpper(string(req.Type))),
		Metadata:       req.Metadata,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	convID, err := pathID(r, "conversationID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	msgs, err := h.msg.GetMessages(r.Context(), convID, CurrentUser(r).ID, service.MessageListInput{
		BeforeID: queryInt64(r, "before_id"),
		AfterID:  queryInt64(r, "after_id"),
		Page:     queryInt(r, "page"),
		Limit:    queryInt(r, "limit"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *handlers) getMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "messageID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	msg, err := h.msg.GetMessage(r.Context(), id, CurrentUser(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

type messageUpdateRequest struct {
	Content string `json:"content"`
}

func (h *handlers) updateMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "messageID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req messageUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	msg, err := h.msg.UpdateMessage(r.Context(), id, CurrentUser(r).ID, req.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *handlers) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "messageID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.msg.DeleteMessage(r.Context(), id, CurrentUser(r).ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) markMessageRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "messageID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.msg.MarkMessageAsRead(r.Context(), id, CurrentUser(r).ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) markMessageDelivered(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "messageID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.msg.MarkMessageAsDelivered(r.Context(), id, CurrentUser(r).ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) searchMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.msg.SearchMessages(r.Context(), CurrentUser(r).ID, r.URL.Query().Get("q"), queryInt64(r, "conversation_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *handlers) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.msg.GetUnreadCount(r.Context(), CurrentUser(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}
