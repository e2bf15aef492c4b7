package main

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/founderskick/realtime/pkg/events"
	"github.com/founderskick/realtime/pkg/model"
)

type unreadStore interface {
	IncrementUnread(ctx context.Context, receiverID, senderID string) error
}

// projector maintains the unread-counter projection from the event stream.
// It runs off the submission path: a counter lagging behind never delays or
// fails a send, and fetch-messages resets it regardless.
type projector struct {
	log   *slog.Logger
	store unreadStore
}

func (p *projector) handle(ctx context.Context, env events.Envelope) {
	if env.Event.Kind != model.KindNewMessage {
		return
	}

	var msg model.Message
	if err := json.Unmarshal(env.Event.Payload, &msg); err != nil {
		p.log.Error("unmarshal message payload", "error", err)
		return
	}
	if msg.SenderID == "" || msg.ReceiverID == "" {
		p.log.Warn("message event without participants", "message_id", msg.ID)
		return
	}

	if err := p.store.IncrementUnread(ctx, msg.ReceiverID, msg.SenderID); err != nil {
		p.log.Error("increment unread counter",
			"receiver_id", msg.ReceiverID, "sender_id", msg.SenderID, "error", err)
	}
}
