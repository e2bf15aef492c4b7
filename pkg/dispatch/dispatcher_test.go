package dispatch

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/founderskick/realtime/pkg/model"
	"github.com/founderskick/realtime/pkg/registry"
)

type fakeSink struct {
	id   string
	data [][]byte
	full bool
}

func newFakeSink() *fakeSink { return &fakeSink{id: uuid.NewString()} }

func (s *fakeSink) SessionID() string { return s.id }

func (s *fakeSink) Push(data []byte) bool {
	if s.full {
		return false
	}
	s.data = append(s.data, data)
	return true
}

type fakeSessions map[string][]registry.Sink

func (f fakeSessions) SessionsFor(userID string) []registry.Sink { return f[userID] }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustEvent(t *testing.T, kind model.EventKind, v any) model.Event {
	t.Helper()
	ev, err := model.NewEvent(kind, v)
	require.NoError(t, err)
	return ev
}

func TestDeliver_FansOutToAllSessionsOfRecipient(t *testing.T) {
	req := require.New(t)
	phone, laptop := newFakeSink(), newFakeSink()
	d := New(discardLogger(), fakeSessions{"bob": {phone, laptop}})

	ev := mustEvent(t, model.KindNewMessage, model.Message{ID: 1, SenderID: "alice", ReceiverID: "bob", Text: "hi"})
	req.Equal(2, d.Deliver(ev, "bob"))

	// Both devices see the identical wire payload.
	req.Len(phone.data, 1)
	req.Len(laptop.data, 1)
	req.Equal(phone.data[0], laptop.data[0])

	var got model.Event
	req.NoError(json.Unmarshal(phone.data[0], &got))
	req.Equal(model.KindNewMessage, got.Kind)
}

func TestDeliver_OfflineRecipientIsSilentNoOp(t *testing.T) {
	req := require.New(t)
	d := New(discardLogger(), fakeSessions{})

	ev := mustEvent(t, model.KindNewMessage, model.Message{SenderID: "alice", ReceiverID: "bob"})
	req.Equal(0, d.Deliver(ev, "bob"))

	typing := mustEvent(t, model.KindUserTyping, model.TypingSignal{UserID: "alice", IsTyping: true})
	req.Equal(0, d.Deliver(typing, "bob"))
}

func TestDeliver_DoesNotReachOtherUsers(t *testing.T) {
	req := require.New(t)
	bob, eve := newFakeSink(), newFakeSink()
	d := New(discardLogger(), fakeSessions{"bob": {bob}, "eve": {eve}})

	ev := mustEvent(t, model.KindUserTyping, model.TypingSignal{UserID: "alice", IsTyping: true})
	req.Equal(1, d.Deliver(ev, "bob"))
	req.Len(bob.data, 1)
	req.Empty(eve.data)
}

func TestDeliver_FullSessionBufferIsSkippedNotRetried(t *testing.T) {
	req := require.New(t)
	ok, stuck := newFakeSink(), newFakeSink()
	stuck.full = true
	d := New(discardLogger(), fakeSessions{"bob": {ok, stuck}})

	ev := mustEvent(t, model.KindNewMessage, model.Message{Text: "hi"})
	req.Equal(1, d.Deliver(ev, "bob"))
	req.Len(ok.data, 1)
	req.Empty(stuck.data)
}

func TestDeliver_PreservesSubmissionOrderPerSender(t *testing.T) {
	req := require.New(t)
	bob := newFakeSink()
	d := New(discardLogger(), fakeSessions{"bob": {bob}})

	for i, text := range []string{"one", "two", "three"} {
		ev := mustEvent(t, model.KindNewMessage, model.Message{ID: int64(i), Text: text})
		d.Deliver(ev, "bob")
	}

	req.Len(bob.data, 3)
	for i, want := range []string{"one", "two", "three"} {
		var ev model.Event
		req.NoError(json.Unmarshal(bob.data[i], &ev))
		var msg model.Message
		req.NoError(json.Unmarshal(ev.Payload, &msg))
		req.Equal(want, msg.Text)
	}
}
