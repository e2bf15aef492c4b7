package main

import (
	"net/http"

	"github.com/founderskick/realtime/pkg/auth"
	"github.com/founderskick/realtime/pkg/model"
)

// FetchConversations lists the caller's conversations, most recent first.
func (a *api) FetchConversations(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conversations, err := a.store.FetchConversations(r.Context(), claims.UserID)
	if err != nil {
		a.log.Error("fetch conversations", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve conversations")
		return
	}
	if conversations == nil {
		conversations = []model.ConversationSummary{}
	}
	writeJSON(w, http.StatusOK, conversations)
}
