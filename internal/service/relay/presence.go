package relay

import (
	"sort"
	"time"

	"github.com/zhouzirui/z-relay/backend/internal/model/chat"
)

// Clients is the persisted record set. Entries are never removed.
type Clients map[string]chat.ClientRecord

// Upsert marks id as freshly connected.
func (c Clients) Upsert(id string, now time.Time) {
	now = chat.RecordTime(now)
	c[id] = chat.ClientRecord{ID: id, ConnectedAt: now, LastSeen: now}
}

// Touch refreshes LastSeen, creating the record if it is missing.
func (c Clients) Touch(id string, now time.Time) {
	record, ok := c[id]
	if !ok {
		c.Upsert(id, now)
		return
	}
	record.LastSeen = chat.RecordTime(now)
	c[id] = record
}

// Copy returns a detached copy safe to hand to another goroutine.
func (c Clients) Copy() map[string]chat.ClientRecord {
	out := make(map[string]chat.ClientRecord, len(c))
	for id, record := range c {
		out[id] = record
	}
	return out
}

// Presence derives the online view from the registry and the record set.
// Nothing is cached between calls.
type Presence struct {
	registry *Registry
	clients  Clients
}

func NewPresence(registry *Registry, clients Clients) *Presence {
	return &Presence{registry: registry, clients: clients}
}

// Snapshot lists the records of every online client, oldest connection first.
func (p *Presence) Snapshot() []chat.ClientRecord {
	out := make([]chat.ClientRecord, 0, p.registry.Len())
	for id, record := range p.clients {
		if p.registry.IsOnline(id) {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectedAt.Before(out[j].ConnectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Frame wraps the current snapshot for the wire.
func (p *Presence) Frame() chat.UserListFrame {
	return chat.UserListFrame{Type: chat.FrameUserList, Users: p.Snapshot()}
}
