package main

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/founderskick/realtime/pkg/auth"
	"github.com/founderskick/realtime/pkg/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// serveWs authenticates the transport handshake and starts the session.
// The session stays in Connecting until the client sends its join event.
func (srv *server) serveWs(w http.ResponseWriter, r *http.Request) {
	tokenString := auth.TokenFromRequest(r)
	if tokenString == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(tokenString)
	if err != nil {
		srv.log.Warn("websocket auth failed", "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.log.Error("websocket upgrade", "error", err)
		return
	}

	s := newSession(srv, claims)
	s.conn = conn
	srv.log.Info("session connecting", "session_id", s.id, "user_id", claims.UserID)

	go s.writePump()
	go s.readPump()
}

// handleBusEvent delivers events produced by other processes. Events this
// instance published are skipped: they were already delivered locally,
// synchronously with their persistence.
func (srv *server) handleBusEvent(_ context.Context, env events.Envelope) {
	if env.Origin == srv.instanceID {
		return
	}
	srv.dispatcher.Deliver(env.Event, env.RecipientID)
}
