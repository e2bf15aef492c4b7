// Package dispatch routes realtime events to the live sessions of a single
// recipient. It never blocks and never retries: durable event kinds rely on
// the message store for eventual visibility, ephemeral kinds are lost when
// nobody is connected.
package dispatch

import (
	"encoding/json"
	"log/slog"

	"github.com/founderskick/realtime/pkg/model"
	"github.com/founderskick/realtime/pkg/registry"
)

// Sessions is the read side of the connection registry.
type Sessions interface {
	SessionsFor(userID string) []registry.Sink
}

type Dispatcher struct {
	log      *slog.Logger
	sessions Sessions
}

func New(log *slog.Logger, sessions Sessions) *Dispatcher {
	return &Dispatcher{log: log, sessions: sessions}
}

// Deliver pushes the event to every live session of the recipient and
// returns how many sessions accepted it. An empty session set is a normal
// no-op, not an error: the recipient is offline and durable kinds will be
// picked up on the next fetch.
func (d *Dispatcher) Deliver(ev model.Event, recipientID string) int {
	sinks := d.sessions.SessionsFor(recipientID)
	if len(sinks) == 0 {
		if !ev.Durable() {
			d.log.Debug("dropping ephemeral event for offline recipient",
				"kind", ev.Kind, "recipient_id", recipientID)
		}
		return 0
	}

	data, err := json.Marshal(ev)
	if err != nil {
		d.log.Error("marshal event", "kind", ev.Kind, "error", err)
		return 0
	}

	delivered := 0
	for _, s := range sinks {
		if s.Push(data) {
			delivered++
		} else {
			d.log.Warn("session buffer full, push dropped",
				"kind", ev.Kind, "recipient_id", recipientID, "session_id", s.SessionID())
		}
	}
	return delivered
}
