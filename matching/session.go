package matching

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// member is one side of an active session. The notified flags guarantee the
// peer hears about this member leaving or completing at most once.
type member struct {
	connID           string
	username         string
	completed        bool
	exited           bool
	leaveNotified    bool
	completeNotified bool
}

func (m *member) gone() bool {
	return m.exited || m.completed
}

// session is an active two-party focus commitment post-match.
type session struct {
	id        string
	createdAt time.Time
	focusTime float64
	members   map[string]*member
}

// partnerOf returns the other member of the session.
func (s *session) partnerOf(connID string) *member {
	for id, m := range s.members {
		if id != connID {
			return m
		}
	}
	return nil
}

// done reports whether both members have exited (left, completed or
// disconnected), at which point the session can be removed.
func (s *session) done() bool {
	for _, m := range s.members {
		if !m.gone() {
			return false
		}
	}
	return true
}

// sessionRegistry tracks active paired sessions and membership.
// A connection belongs to at most one active session at a time.
// All access is serialized by the Broker's lock.
type sessionRegistry struct {
	sessions map[string]*session
	byConn   map[string]string // connection id -> session id
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{
		sessions: make(map[string]*session),
		byConn:   make(map[string]string),
	}
}

// create pairs two distinct connections into a new session. Invoked only by
// the broker on a successful match.
func (r *sessionRegistry) create(a, b *entry, now time.Time) *session {
	s := &session{
		id:        ulid.Make().String(),
		createdAt: now,
		focusTime: a.focusTime,
		members: map[string]*member{
			a.connID: {connID: a.connID, username: a.username},
			b.connID: {connID: b.connID, username: b.username},
		},
	}
	r.sessions[s.id] = s
	r.byConn[a.connID] = s.id
	r.byConn[b.connID] = s.id
	return s
}

// byConnection returns the active session containing connID, if any.
func (r *sessionRegistry) byConnection(connID string) *session {
	id, ok := r.byConn[connID]
	if !ok {
		return nil
	}
	return r.sessions[id]
}

// remove drops a finished session and its membership index.
func (r *sessionRegistry) remove(s *session) {
	for id := range s.members {
		if r.byConn[id] == s.id {
			delete(r.byConn, id)
		}
	}
	delete(r.sessions, s.id)
}

func (r *sessionRegistry) count() int {
	return len(r.sessions)
}
