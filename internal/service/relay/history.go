package relay

import "github.com/zhouzirui/z-relay/backend/internal/model/chat"

// DefaultHistoryLimit is the number of messages replayed to newcomers.
const DefaultHistoryLimit = 100

// History is an append-only log that keeps the newest limit messages.
type History struct {
	limit int
	items []chat.Message
}

func NewHistory(limit int) *History {
	if limit < 1 {
		limit = DefaultHistoryLimit
	}
	return &History{
		limit: limit,
		items: make([]chat.Message, 0, limit),
	}
}

// Append adds msg at the tail and drops from the head past the limit.
func (h *History) Append(msg chat.Message) {
	h.items = append(h.items, msg)
	if over := len(h.items) - h.limit; over > 0 {
		h.items = append(h.items[:0], h.items[over:]...)
	}
}

// Snapshot returns a copy; it is never nil so it encodes as [].
func (h *History) Snapshot() []chat.Message {
	out := make([]chat.Message, len(h.items))
	copy(out, h.items)
	return out
}

// Restore replaces the contents with the newest limit entries of msgs.
func (h *History) Restore(msgs []chat.Message) {
	if over := len(msgs) - h.limit; over > 0 {
		msgs = msgs[over:]
	}
	h.items = append(h.items[:0], msgs...)
}

func (h *History) Len() int   { return len(h.items) }
func (h *History) Limit() int { return h.limit }
