package main

import (
	"net/http"
	"time"
)

// OnlineUsers lists every user currently marked online.
func (a *api) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.presence.OnlineUsers(r.Context())
	if err != nil {
		a.log.Error("fetch online users", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch presence")
		return
	}
	if users == nil {
		users = []string{}
	}
	writeJSON(w, http.StatusOK, users)
}

type presenceResponse struct {
	UserID   string     `json:"user_id"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// UserPresence reports one user's derived presence plus their lastSeen.
func (a *api) UserPresence(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	online, err := a.presence.IsOnline(r.Context(), userID)
	if err != nil {
		a.log.Error("fetch presence", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch presence")
		return
	}

	resp := presenceResponse{UserID: userID, IsOnline: online}
	if lastSeen, err := a.presence.LastSeen(r.Context(), userID); err == nil && !lastSeen.IsZero() {
		resp.LastSeen = &lastSeen
	}
	writeJSON(w, http.StatusOK, resp)
}
