package model

import "encoding/json"

// EventKind names a realtime push as seen on the wire by clients.
type EventKind string

const (
	KindNewMessage         EventKind = "newMessage"
	KindMessageSent        EventKind = "messageSent"
	KindMessageError       EventKind = "messageError"
	KindUserTyping         EventKind = "userTyping"
	KindUserOnline         EventKind = "userOnline"
	KindUserOffline        EventKind = "userOffline"
	KindConnectionRequest  EventKind = "connectionRequest"
	KindConnectionAccepted EventKind = "connectionAccepted"
)

// Event is a single realtime push. The payload is pre-marshaled so the
// dispatcher can fan an event out to several sessions without re-encoding.
type Event struct {
	Kind    EventKind       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent wraps v into an Event of the given kind.
func NewEvent(kind EventKind, v any) (Event, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: kind, Payload: payload}, nil
}

// Durable reports whether events of this kind have a persisted copy the
// recipient can fetch later. Typing and presence pushes do not; dropping
// them for an offline recipient loses nothing.
func (e Event) Durable() bool {
	switch e.Kind {
	case KindNewMessage, KindConnectionRequest, KindConnectionAccepted:
		return true
	}
	return false
}
