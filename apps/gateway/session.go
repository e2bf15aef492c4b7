package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/founderskick/realtime/pkg/auth"
	"github.com/founderskick/realtime/pkg/dispatch"
	"github.com/founderskick/realtime/pkg/model"
	"github.com/founderskick/realtime/pkg/registry"
	"github.com/founderskick/realtime/pkg/store"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

var errInvalidIdentity = errors.New("join identity does not match authenticated user")

// messageStore is the slice of the store gateway the session needs.
type messageStore interface {
	SubmitMessage(ctx context.Context, in store.SubmitInput) (model.Message, error)
}

// eventPublisher puts an event on the bus for other processes.
type eventPublisher interface {
	Publish(ctx context.Context, recipientID string, ev model.Event) error
}

type server struct {
	log        *slog.Logger
	instanceID string
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	store      messageStore
	bus        eventPublisher
}

// Inbound client events (join, typing, sendMessage).
type clientEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	UserID string `json:"user_id"`
}

type typingPayload struct {
	ReceiverID string `json:"receiver_id"`
	IsTyping   bool   `json:"is_typing"`
}

type sendMessagePayload struct {
	ReceiverID string `json:"receiver_id"`
	Text       string `json:"text"`
	FileURL    string `json:"file_url"`
	FileType   string `json:"file_type"`
}

type sessionState int

const (
	stateConnecting sessionState = iota
	stateBound
	stateClosed
)

// session is one live transport connection. State moves strictly
// Connecting -> Bound -> Closed; a reconnect is always a new session with a
// new handle. State is touched only from the read loop, so it needs no lock.
type session struct {
	id     string
	claims *auth.Claims
	userID string

	srv   *server
	conn  *websocket.Conn
	send  chan []byte
	done  chan struct{}
	state sessionState

	closeOnce sync.Once
}

func newSession(srv *server, claims *auth.Claims) *session {
	return &session{
		id:     uuid.NewString(),
		claims: claims,
		srv:    srv,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
		state:  stateConnecting,
	}
}

func (s *session) SessionID() string { return s.id }

// Push hands a payload to the write loop without blocking. A full buffer
// means the session is too slow to keep up; the push is dropped.
func (s *session) Push(data []byte) bool {
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// handleEvent routes one inbound event. A non-nil return is fatal for the
// session; recoverable problems are answered with a messageError push.
func (s *session) handleEvent(ctx context.Context, ev clientEvent) error {
	switch ev.Type {
	case "join":
		var p joinPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			s.pushError("malformed join payload")
			return nil
		}
		// A failed bind forces the session closed.
		return s.handleJoin(p.UserID)

	case "typing":
		var p typingPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.ReceiverID == "" {
			s.pushError("malformed typing payload")
			return nil
		}
		s.handleTyping(ctx, p)
		return nil

	case "sendMessage":
		var p sendMessagePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			s.pushError("malformed sendMessage payload")
			return nil
		}
		s.handleSendMessage(ctx, p)
		return nil

	default:
		s.pushError(fmt.Sprintf("unknown event type %q", ev.Type))
		return nil
	}
}

// handleJoin binds the session's authenticated identity into the registry.
// Joining again with the same identity is a no-op.
func (s *session) handleJoin(userID string) error {
	if s.state == stateClosed {
		return errors.New("session closed")
	}
	if userID == "" || userID != s.claims.UserID {
		return fmt.Errorf("%w: %q", errInvalidIdentity, userID)
	}
	if err := s.srv.registry.Bind(userID, s); err != nil {
		return err
	}
	s.userID = userID
	s.state = stateBound
	return nil
}

func (s *session) handleTyping(ctx context.Context, p typingPayload) {
	if s.state != stateBound {
		s.pushError("typing before join")
		return
	}
	ev, err := model.NewEvent(model.KindUserTyping, model.TypingSignal{
		UserID:   s.userID,
		IsTyping: p.IsTyping,
	})
	if err != nil {
		s.srv.log.Error("marshal typing event", "error", err)
		return
	}
	s.srv.dispatcher.Deliver(ev, p.ReceiverID)
	if err := s.srv.bus.Publish(ctx, p.ReceiverID, ev); err != nil {
		s.srv.log.Debug("publish typing event", "error", err)
	}
}

// handleSendMessage is the socket fast-path. It goes through the same
// persist -> conversation -> dispatch flow as the HTTP path: the realtime
// push happens only after the durable write succeeded.
func (s *session) handleSendMessage(ctx context.Context, p sendMessagePayload) {
	if s.state != stateBound {
		s.pushError("sendMessage before join")
		return
	}

	msg, err := s.srv.store.SubmitMessage(ctx, store.SubmitInput{
		SenderID:   s.userID,
		ReceiverID: p.ReceiverID,
		Text:       p.Text,
		FileURL:    p.FileURL,
		FileType:   p.FileType,
	})
	if err != nil {
		s.srv.log.Error("submit message", "sender_id", s.userID, "error", err)
		s.pushError("message could not be saved")
		return
	}

	ev, err := model.NewEvent(model.KindNewMessage, msg)
	if err != nil {
		s.srv.log.Error("marshal message event", "error", err)
		return
	}
	s.srv.dispatcher.Deliver(ev, msg.ReceiverID)
	// The bus copy reaches other gateway instances and the unread-counter
	// projection; our own consumer skips it by origin.
	if err := s.srv.bus.Publish(ctx, msg.ReceiverID, ev); err != nil {
		s.srv.log.Error("publish message event", "message_id", msg.ID, "error", err)
	}

	s.pushEvent(model.KindMessageSent, msg)
}

func (s *session) pushEvent(kind model.EventKind, v any) {
	ev, err := model.NewEvent(kind, v)
	if err != nil {
		s.srv.log.Error("marshal event", "kind", kind, "error", err)
		return
	}
	data, _ := json.Marshal(ev)
	s.Push(data)
}

func (s *session) pushError(reason string) {
	s.pushEvent(model.KindMessageError, map[string]string{"error": reason})
}

// teardown moves the session to Closed and, if it ever bound, removes it
// from the registry. A session that disconnects while still Connecting
// never touched the registry and raises no presence transition.
func (s *session) teardown() {
	if s.state == stateBound {
		s.srv.registry.Unbind(s.id)
	}
	s.state = stateClosed
	s.closeOnce.Do(func() { close(s.done) })
	if s.conn != nil {
		s.conn.Close()
	}
}

// readPump pumps events from the websocket connection into the session.
// Running all inbound handling on one loop keeps submission order per
// sender intact.
func (s *session) readPump() {
	defer s.teardown()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.srv.log.Warn("session read error", "session_id", s.id, "error", err)
			}
			break
		}

		var ev clientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.pushError("malformed event")
			continue
		}
		if err := s.handleEvent(context.Background(), ev); err != nil {
			s.srv.log.Warn("session closing", "session_id", s.id, "error", err)
			break
		}
	}
}

// writePump pumps outbound payloads to the websocket connection.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := s.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(data)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
