// Package presence turns registry transitions into userOnline/userOffline
// broadcasts and keeps the external user-profile store's lastSeen current.
package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/founderskick/realtime/pkg/model"
)

// Store is the slice of the external user-profile store this layer touches.
type Store interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string, lastSeen time.Time) error
}

// Broadcaster fans a payload out to every connected session.
type Broadcaster interface {
	Broadcast(data []byte) int
}

type Publisher struct {
	log      *slog.Logger
	store    Store
	sessions Broadcaster
	timeout  time.Duration
}

func NewPublisher(log *slog.Logger, store Store, sessions Broadcaster) *Publisher {
	return &Publisher{
		log:      log,
		store:    store,
		sessions: sessions,
		timeout:  5 * time.Second,
	}
}

// OnTransition is wired as the registry's transition hook. The broadcast is
// fire-and-forget: a session mid-disconnect simply misses it, and the next
// presence fetch shows the correct state. Subscribers must treat repeated
// transitions for the same user as idempotent display state.
func (p *Publisher) OnTransition(userID string, online bool) {
	kind := model.KindUserOnline
	if !online {
		kind = model.KindUserOffline
	}
	ev, err := model.NewEvent(kind, model.PresenceUpdate{UserID: userID, IsOnline: online})
	if err != nil {
		p.log.Error("marshal presence event", "user_id", userID, "error", err)
		return
	}
	data, _ := json.Marshal(ev)
	delivered := p.sessions.Broadcast(data)
	p.log.Debug("presence broadcast", "user_id", userID, "online", online, "delivered", delivered)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if online {
		err = p.store.SetOnline(ctx, userID)
	} else {
		err = p.store.SetOffline(ctx, userID, time.Now())
	}
	if err != nil {
		p.log.Error("update presence store", "user_id", userID, "online", online, "error", err)
	}
}
