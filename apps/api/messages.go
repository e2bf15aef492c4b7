package main

import (
	"encoding/json"
	"net/http"

	"github.com/founderskick/realtime/pkg/auth"
	"github.com/founderskick/realtime/pkg/model"
	"github.com/founderskick/realtime/pkg/store"
)

type sendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Text       string `json:"text"`
	FileURL    string `json:"file_url"`
	FileType   string `json:"file_type"`
}

// SubmitMessage persists the message and only then puts a newMessage event
// on the bus for the gateways. A persistence failure is surfaced to the
// caller and produces no realtime push.
func (a *api) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	msg, err := a.store.SubmitMessage(r.Context(), store.SubmitInput{
		SenderID:   claims.UserID,
		ReceiverID: req.ReceiverID,
		Text:       req.Text,
		FileURL:    req.FileURL,
		FileType:   req.FileType,
	})
	if err != nil {
		a.log.Error("submit message", "sender_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Message could not be saved")
		return
	}

	ev, err := model.NewEvent(model.KindNewMessage, msg)
	if err == nil {
		if err := a.bus.Publish(r.Context(), msg.ReceiverID, ev); err != nil {
			// Durable copy exists; the receiver sees it on next fetch.
			a.log.Error("publish message event", "message_id", msg.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, msg)
}

// FetchMessages returns the conversation with the counterpart in creation
// order. Fetching marks the counterpart's unread messages as read.
func (a *api) FetchMessages(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	otherID := r.PathValue("userID")
	if otherID == "" {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}

	messages, err := a.store.FetchMessages(r.Context(), claims.UserID, otherID)
	if err != nil {
		a.log.Error("fetch messages", "user_id", claims.UserID, "other_user_id", otherID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve messages")
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}
