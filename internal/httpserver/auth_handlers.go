package httpserver

import (
	"net/http"
)

type issueTokenRequest struct {
	UserID      int64    `json:"user_id"`
	Permissions []string `json:"permissions"`
}

// issueToken mints a token for an existing user. Only mounted in development;
// production tokens come from the identity provider.
func (h *handlers) issueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.auth.IssueToken(r.Context(), req.UserID, req.Permissions)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CurrentUser(r))
}
