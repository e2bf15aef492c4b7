package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	id   string
	mu   sync.Mutex
	data [][]byte
	full bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{id: uuid.NewString()}
}

func (s *fakeSink) SessionID() string { return s.id }

func (s *fakeSink) Push(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.data = append(s.data, data)
	return true
}

type transition struct {
	userID string
	online bool
}

func TestBind_FirstSessionRaisesOnlineTransition(t *testing.T) {
	req := require.New(t)
	var transitions []transition
	r := New(func(userID string, online bool) {
		transitions = append(transitions, transition{userID, online})
	})

	req.False(r.IsOnline("alice"))

	req.NoError(r.Bind("alice", newFakeSink()))

	req.True(r.IsOnline("alice"))
	req.Equal([]transition{{"alice", true}}, transitions)
}

func TestBind_IdempotentPerSession(t *testing.T) {
	req := require.New(t)
	var transitions []transition
	r := New(func(userID string, online bool) {
		transitions = append(transitions, transition{userID, online})
	})

	s := newFakeSink()
	req.NoError(r.Bind("alice", s))
	req.NoError(r.Bind("alice", s))

	req.Len(r.SessionsFor("alice"), 1)
	req.Len(transitions, 1)
}

func TestBind_RebindToDifferentUserFails(t *testing.T) {
	req := require.New(t)
	r := New(nil)

	s := newFakeSink()
	req.NoError(r.Bind("alice", s))

	err := r.Bind("bob", s)
	req.ErrorIs(err, ErrSessionBound)
	req.False(r.IsOnline("bob"))
	req.True(r.IsOnline("alice"))
}

func TestUnbind_LastSessionRaisesOfflineTransition(t *testing.T) {
	req := require.New(t)
	var transitions []transition
	r := New(func(userID string, online bool) {
		transitions = append(transitions, transition{userID, online})
	})

	s := newFakeSink()
	req.NoError(r.Bind("alice", s))
	r.Unbind(s.SessionID())

	req.False(r.IsOnline("alice"))
	req.Empty(r.SessionsFor("alice"))
	req.Equal([]transition{{"alice", true}, {"alice", false}}, transitions)
}

func TestUnbind_UnknownSessionIsNoOp(t *testing.T) {
	req := require.New(t)
	var transitions []transition
	r := New(func(userID string, online bool) {
		transitions = append(transitions, transition{userID, online})
	})

	r.Unbind(uuid.NewString())
	req.Empty(transitions)
}

func TestUnbind_TwiceIsIdempotent(t *testing.T) {
	req := require.New(t)
	var transitions []transition
	r := New(func(userID string, online bool) {
		transitions = append(transitions, transition{userID, online})
	})

	s := newFakeSink()
	req.NoError(r.Bind("alice", s))
	r.Unbind(s.SessionID())
	r.Unbind(s.SessionID())

	// The second unbind has no observable effect and no duplicate transition.
	req.Len(transitions, 2)
}

func TestMultiDevice_OnlineUntilLastSessionGone(t *testing.T) {
	req := require.New(t)
	var transitions []transition
	r := New(func(userID string, online bool) {
		transitions = append(transitions, transition{userID, online})
	})

	s1, s2 := newFakeSink(), newFakeSink()
	req.NoError(r.Bind("alice", s1))
	req.NoError(r.Bind("alice", s2))
	req.Len(r.SessionsFor("alice"), 2)
	req.Len(transitions, 1) // only the first bind transitions

	r.Unbind(s1.SessionID())
	req.True(r.IsOnline("alice"))
	req.Len(r.SessionsFor("alice"), 1)
	req.Len(transitions, 1)

	r.Unbind(s2.SessionID())
	req.False(r.IsOnline("alice"))
	req.Equal(transition{"alice", false}, transitions[1])
}

func TestReconnect_LastTransitionMatchesLiveState(t *testing.T) {
	req := require.New(t)

	// A reconnect interleaves the old session's Unbind with the new
	// session's Bind. A slow offline delivery must never overwrite the
	// newer online transition on the wire.
	for i := 0; i < 50; i++ {
		var mu sync.Mutex
		var seen []bool
		r := New(func(_ string, online bool) {
			if !online {
				time.Sleep(time.Millisecond)
			}
			mu.Lock()
			seen = append(seen, online)
			mu.Unlock()
		})

		old := newFakeSink()
		req.NoError(r.Bind("alice", old))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Unbind(old.SessionID())
		}()
		go func() {
			defer wg.Done()
			req.NoError(r.Bind("alice", newFakeSink()))
		}()
		wg.Wait()

		req.True(r.IsOnline("alice"))
		mu.Lock()
		req.True(seen[len(seen)-1], "transitions %v end offline while a session is live", seen)
		mu.Unlock()
	}
}

func TestBroadcast_ReachesEverySession(t *testing.T) {
	req := require.New(t)
	r := New(nil)

	a1, a2, b := newFakeSink(), newFakeSink(), newFakeSink()
	req.NoError(r.Bind("alice", a1))
	req.NoError(r.Bind("alice", a2))
	req.NoError(r.Bind("bob", b))

	n := r.Broadcast([]byte(`{"type":"userOnline"}`))
	req.Equal(3, n)
	req.Len(a1.data, 1)
	req.Len(a2.data, 1)
	req.Len(b.data, 1)
}

func TestBroadcast_CountsOnlyAcceptedPushes(t *testing.T) {
	req := require.New(t)
	r := New(nil)

	ok, stuck := newFakeSink(), newFakeSink()
	stuck.full = true
	req.NoError(r.Bind("alice", ok))
	req.NoError(r.Bind("bob", stuck))

	req.Equal(1, r.Broadcast([]byte("x")))
}

func TestConcurrentBindUnbind_NoLeaks(t *testing.T) {
	req := require.New(t)
	r := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := newFakeSink()
			_ = r.Bind("alice", s)
			r.Unbind(s.SessionID())
		}()
	}
	wg.Wait()

	req.False(r.IsOnline("alice"))
	req.Empty(r.SessionsFor("alice"))
}
