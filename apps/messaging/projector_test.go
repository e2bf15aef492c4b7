package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/founderskick/realtime/pkg/events"
	"github.com/founderskick/realtime/pkg/model"
)

type increment struct {
	receiverID, senderID string
}

type fakeUnreadStore struct {
	increments []increment
}

func (f *fakeUnreadStore) IncrementUnread(_ context.Context, receiverID, senderID string) error {
	f.increments = append(f.increments, increment{receiverID, senderID})
	return nil
}

func newTestProjector() (*projector, *fakeUnreadStore) {
	st := &fakeUnreadStore{}
	return &projector{
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		store: st,
	}, st
}

func envelope(t *testing.T, kind model.EventKind, v any) events.Envelope {
	t.Helper()
	ev, err := model.NewEvent(kind, v)
	require.NoError(t, err)
	return events.Envelope{Origin: "api", RecipientID: "bob", Event: ev}
}

func TestHandle_NewMessageBumpsReceiverCounter(t *testing.T) {
	req := require.New(t)
	p, st := newTestProjector()

	p.handle(context.Background(), envelope(t, model.KindNewMessage,
		model.Message{ID: 1, SenderID: "alice", ReceiverID: "bob", Text: "hi"}))

	req.Equal([]increment{{"bob", "alice"}}, st.increments)
}

func TestHandle_IgnoresEphemeralKinds(t *testing.T) {
	req := require.New(t)
	p, st := newTestProjector()

	p.handle(context.Background(), envelope(t, model.KindUserTyping,
		model.TypingSignal{UserID: "alice", IsTyping: true}))
	p.handle(context.Background(), envelope(t, model.KindConnectionRequest,
		model.ConnectionRequest{ID: 7, SenderID: "alice", ReceiverID: "bob"}))

	req.Empty(st.increments)
}

func TestHandle_SkipsMessagesWithoutParticipants(t *testing.T) {
	req := require.New(t)
	p, st := newTestProjector()

	p.handle(context.Background(), envelope(t, model.KindNewMessage, model.Message{ID: 2, Text: "orphan"}))
	req.Empty(st.increments)
}
