package relay

import (
	"errors"
	"sort"
	"time"

	"github.com/zhouzirui/z-relay/backend/internal/config"
)

// ErrDuplicateSession is returned by Register under the reject policy.
var ErrDuplicateSession = errors.New("client already has a live session")

// Session binds a client identifier to its live connection.
type Session struct {
	ClientID    string
	Conn        Conn
	ConnectedAt time.Time
	LastSeen    time.Time
}

// Registry maps client identifiers to live sessions. It is owned by the hub
// goroutine and is not safe for concurrent use.
type Registry struct {
	policy   config.DuplicatePolicy
	sessions map[string]*Session
}

// NewRegistry returns an empty registry applying policy to repeat registrations.
func NewRegistry(policy config.DuplicatePolicy) *Registry {
	if policy == "" {
		policy = config.DuplicateSupersede
	}
	return &Registry{
		policy:   policy,
		sessions: make(map[string]*Session),
	}
}

// Register installs conn as the live session for clientID. When another
// handle was live it is returned as replaced; closing it is left to the
// caller.
func (r *Registry) Register(clientID string, conn Conn, now time.Time) (session *Session, replaced Conn, err error) {
	if prev, ok := r.sessions[clientID]; ok && prev.Conn != conn {
		if r.policy == config.DuplicateReject {
			return nil, nil, ErrDuplicateSession
		}
		replaced = prev.Conn
	}

	session = &Session{
		ClientID:    clientID,
		Conn:        conn,
		ConnectedAt: now,
		LastSeen:    now,
	}
	r.sessions[clientID] = session
	return session, replaced, nil
}

// Unregister removes the session for clientID if conn is its live handle.
// It reports whether anything was removed.
func (r *Registry) Unregister(clientID string, conn Conn) bool {
	s, ok := r.sessions[clientID]
	if !ok || s.Conn != conn {
		return false
	}
	delete(r.sessions, clientID)
	return true
}

// Lookup returns the live session for clientID.
func (r *Registry) Lookup(clientID string) (*Session, bool) {
	s, ok := r.sessions[clientID]
	return s, ok
}

func (r *Registry) IsOnline(clientID string) bool {
	_, ok := r.sessions[clientID]
	return ok
}

// Touch refreshes LastSeen when conn is the live handle for clientID.
func (r *Registry) Touch(clientID string, conn Conn, now time.Time) {
	if s, ok := r.sessions[clientID]; ok && s.Conn == conn {
		s.LastSeen = now
	}
}

// Sessions lists live sessions ordered by connect time, then identifier.
func (r *Registry) Sessions() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectedAt.Before(out[j].ConnectedAt)
		}
		return out[i].ClientID < out[j].ClientID
	})
	return out
}

func (r *Registry) Len() int { return len(r.sessions) }
