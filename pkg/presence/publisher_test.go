package presence

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/founderskick/realtime/pkg/model"
)

type fakeStore struct {
	online   []string
	offline  []string
	lastSeen map[string]time.Time
}

func (s *fakeStore) SetOnline(_ context.Context, userID string) error {
	s.online = append(s.online, userID)
	return nil
}

func (s *fakeStore) SetOffline(_ context.Context, userID string, lastSeen time.Time) error {
	s.offline = append(s.offline, userID)
	if s.lastSeen == nil {
		s.lastSeen = make(map[string]time.Time)
	}
	s.lastSeen[userID] = lastSeen
	return nil
}

type fakeBroadcaster struct {
	payloads [][]byte
}

func (b *fakeBroadcaster) Broadcast(data []byte) int {
	b.payloads = append(b.payloads, data)
	return 1
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOnTransition_OnlineBroadcastsAndMarksStore(t *testing.T) {
	req := require.New(t)
	store := &fakeStore{}
	sessions := &fakeBroadcaster{}
	p := NewPublisher(discardLogger(), store, sessions)

	p.OnTransition("alice", true)

	req.Len(sessions.payloads, 1)
	var ev model.Event
	req.NoError(json.Unmarshal(sessions.payloads[0], &ev))
	req.Equal(model.KindUserOnline, ev.Kind)

	var update model.PresenceUpdate
	req.NoError(json.Unmarshal(ev.Payload, &update))
	req.Equal("alice", update.UserID)
	req.True(update.IsOnline)

	req.Equal([]string{"alice"}, store.online)
	req.Empty(store.offline)
}

func TestOnTransition_OfflineRecordsLastSeen(t *testing.T) {
	req := require.New(t)
	store := &fakeStore{}
	sessions := &fakeBroadcaster{}
	p := NewPublisher(discardLogger(), store, sessions)

	before := time.Now()
	p.OnTransition("bob", false)

	req.Len(sessions.payloads, 1)
	var ev model.Event
	req.NoError(json.Unmarshal(sessions.payloads[0], &ev))
	req.Equal(model.KindUserOffline, ev.Kind)

	req.Equal([]string{"bob"}, store.offline)
	req.False(store.lastSeen["bob"].Before(before))
}

func TestOnTransition_RapidFlapsAreIdempotentDisplayState(t *testing.T) {
	req := require.New(t)
	store := &fakeStore{}
	sessions := &fakeBroadcaster{}
	p := NewPublisher(discardLogger(), store, sessions)

	p.OnTransition("carol", true)
	p.OnTransition("carol", false)
	p.OnTransition("carol", true)

	// Each transition is a standalone broadcast; subscribers collapse them.
	req.Len(sessions.payloads, 3)
	req.Equal([]string{"carol", "carol"}, store.online)
	req.Equal([]string{"carol"}, store.offline)
}
