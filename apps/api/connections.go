package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/founderskick/realtime/pkg/auth"
	"github.com/founderskick/realtime/pkg/model"
	"github.com/founderskick/realtime/pkg/store"
)

type connectionRequestBody struct {
	ReceiverID string `json:"receiver_id"`
}

// CreateConnection persists a pending connection request and pushes a
// connectionRequest event at the receiver.
func (a *api) CreateConnection(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req connectionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReceiverID == "" {
		writeError(w, http.StatusBadRequest, "receiver_id is required")
		return
	}
	if req.ReceiverID == claims.UserID {
		writeError(w, http.StatusBadRequest, "cannot connect to yourself")
		return
	}

	cr, err := a.store.CreateConnectionRequest(r.Context(), claims.UserID, req.ReceiverID)
	if err != nil {
		a.log.Error("create connection request", "sender_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create connection request")
		return
	}

	if ev, err := model.NewEvent(model.KindConnectionRequest, cr); err == nil {
		if err := a.bus.Publish(r.Context(), cr.ReceiverID, ev); err != nil {
			a.log.Error("publish connection request", "request_id", cr.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, cr)
}

// AcceptConnection marks the request accepted and notifies its sender.
func (a *api) AcceptConnection(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	cr, err := a.store.AcceptConnectionRequest(r.Context(), id, claims.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Connection request not found")
		return
	case errors.Is(err, store.ErrNotAllowed):
		writeError(w, http.StatusForbidden, "Not your connection request")
		return
	case err != nil:
		a.log.Error("accept connection request", "request_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to accept connection request")
		return
	}

	if ev, err := model.NewEvent(model.KindConnectionAccepted, cr); err == nil {
		if err := a.bus.Publish(r.Context(), cr.SenderID, ev); err != nil {
			a.log.Error("publish connection accepted", "request_id", cr.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, cr)
}
