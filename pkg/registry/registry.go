// Package registry maps logical user identities to their live transport
// sessions. It is the only mutable shared state in the realtime core: the
// session lifecycle writes it, the dispatcher and presence publisher read it.
package registry

import (
	"errors"
	"sync"
)

// ErrSessionBound is returned when a session that already completed a bind
// is bound again under a different user. Sessions are bound exactly once.
var ErrSessionBound = errors.New("session already bound to another user")

// Sink is the outbound side of one live transport session. Push must not
// block: it hands the payload to the session's write loop or reports false
// when the session's buffer is full.
type Sink interface {
	SessionID() string
	Push(data []byte) bool
}

// TransitionFunc is invoked after a user's first session binds (online=true)
// or their last session unbinds (online=false). It is called outside the
// registry lock, so implementations may do I/O.
type TransitionFunc func(userID string, online bool)

type Registry struct {
	mu        sync.RWMutex
	byUser    map[string]map[string]Sink // userID -> sessionID -> sink
	bySession map[string]string          // sessionID -> userID
	seq       map[string]uint64          // per-user transition sequence, under mu

	deliverMu sync.Mutex
	delivered map[string]uint64 // highest sequence handed to the hook, under deliverMu

	onTransition TransitionFunc
}

func New(onTransition TransitionFunc) *Registry {
	return &Registry{
		byUser:       make(map[string]map[string]Sink),
		bySession:    make(map[string]string),
		seq:          make(map[string]uint64),
		delivered:    make(map[string]uint64),
		onTransition: onTransition,
	}
}

// Bind attaches a session to a user. Binding the same session to the same
// user again is a no-op; binding it to a different user fails. The first
// session for a user raises an online transition.
func (r *Registry) Bind(userID string, s Sink) error {
	id := s.SessionID()

	r.mu.Lock()
	if bound, ok := r.bySession[id]; ok {
		r.mu.Unlock()
		if bound == userID {
			return nil
		}
		return ErrSessionBound
	}

	sessions := r.byUser[userID]
	if sessions == nil {
		sessions = make(map[string]Sink)
		r.byUser[userID] = sessions
	}
	sessions[id] = s
	r.bySession[id] = userID
	first := len(sessions) == 1
	var seq uint64
	if first {
		r.seq[userID]++
		seq = r.seq[userID]
	}
	r.mu.Unlock()

	if first {
		r.deliver(userID, true, seq)
	}
	return nil
}

// Unbind removes a session. Unknown sessions are ignored, which makes
// double-disconnect events harmless. Emptying a user's session set raises
// an offline transition.
func (r *Registry) Unbind(sessionID string) {
	r.mu.Lock()
	userID, ok := r.bySession[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.bySession, sessionID)

	sessions := r.byUser[userID]
	delete(sessions, sessionID)
	last := len(sessions) == 0
	var seq uint64
	if last {
		delete(r.byUser, userID)
		r.seq[userID]++
		seq = r.seq[userID]
	}
	r.mu.Unlock()

	if last {
		r.deliver(userID, false, seq)
	}
}

// deliver hands a transition to the hook in sequence order. Delivery is
// serialized, and a transition that lost the race to a newer one for the
// same user is dropped, so the last transition a subscriber observes always
// matches the registry's current state. A reconnect that interleaves the
// old session's Unbind with the new session's Bind can never end on a
// stale offline.
func (r *Registry) deliver(userID string, online bool, seq uint64) {
	if r.onTransition == nil {
		return
	}
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()
	if seq <= r.delivered[userID] {
		return
	}
	r.delivered[userID] = seq
	r.onTransition(userID, online)
}

// IsOnline reports whether the user has at least one live session.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// SessionsFor returns a snapshot of the user's live sessions. The copy lets
// callers push to the sinks without holding the registry lock.
func (r *Registry) SessionsFor(userID string) []Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.byUser[userID]
	if len(sessions) == 0 {
		return nil
	}
	out := make([]Sink, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s)
	}
	return out
}

// Broadcast pushes data to every live session of every user and returns the
// number of sinks that accepted it.
func (r *Registry) Broadcast(data []byte) int {
	r.mu.RLock()
	sinks := make([]Sink, 0, len(r.bySession))
	for _, sessions := range r.byUser {
		for _, s := range sessions {
			sinks = append(sinks, s)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range sinks {
		if s.Push(data) {
			delivered++
		}
	}
	return delivered
}
