package relay

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/zhouzirui/z-relay/backend/internal/model/chat"
)

// ParseInbound decodes a client frame. Anything that is not a JSON object of
// the expected shape becomes plain content with no target.
func ParseInbound(raw []byte) chat.Inbound {
	var in chat.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return chat.Inbound{Content: string(raw)}
	}
	in.ToUserID = strings.TrimSpace(in.ToUserID)
	return in
}

// Delivery is one outbound copy of a routed message.
type Delivery struct {
	ClientID string
	Conn     Conn
	Message  chat.Message
}

// Plan is the outcome of routing one inbound message: the canonical copy for
// history and the per-connection deliveries.
type Plan struct {
	Canonical  chat.Message
	Deliveries []Delivery
}

func (p *Plan) add(clientID string, conn Conn, msg chat.Message) {
	for _, d := range p.Deliveries {
		if d.Conn == conn {
			return
		}
	}
	p.Deliveries = append(p.Deliveries, Delivery{ClientID: clientID, Conn: conn, Message: msg})
}

// Router decides between broadcast and private delivery.
type Router struct {
	registry *Registry
}

func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Route plans delivery of in, sent by from over senderConn.
//
// A targeted message goes to the target's live connection, if any, and back
// to the sender, both labelled private. An untargeted message goes to every
// other live session as received and back to the sender as sent. The
// canonical copy is private or received respectively. No connection appears
// twice in the plan.
func (r *Router) Route(from string, senderConn Conn, in chat.Inbound, now time.Time) Plan {
	msg := chat.Message{
		Content:    in.Content,
		Timestamp:  chat.FormatTimestamp(now),
		FromUserID: from,
	}

	if in.ToUserID != "" {
		msg.Type = chat.TypePrivate
		msg.ToUserID = in.ToUserID
		plan := Plan{Canonical: msg}
		if target, ok := r.registry.Lookup(in.ToUserID); ok {
			plan.add(target.ClientID, target.Conn, msg)
		}
		plan.add(from, senderConn, msg)
		return plan
	}

	msg.Type = chat.TypeReceived
	plan := Plan{Canonical: msg}
	for _, s := range r.registry.Sessions() {
		if s.ClientID == from || s.Conn == senderConn {
			continue
		}
		plan.add(s.ClientID, s.Conn, msg)
	}
	plan.add(from, senderConn, msg.WithType(chat.TypeSent))
	return plan
}
