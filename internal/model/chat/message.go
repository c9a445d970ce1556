package chat

import "time"

// MessageType labels a message relative to the connection that receives it.
type MessageType string

const (
	TypeSystem   MessageType = "system"
	TypeSent     MessageType = "sent"
	TypeReceived MessageType = "received"
	TypePrivate  MessageType = "private"
)

// TimestampLayout is the ISO-8601 UTC layout used on the wire.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Message is a single relayed chat line. Values are never mutated after
// construction; per-recipient copies are produced with WithType.
type Message struct {
	Type       MessageType `json:"type" bson:"type"`
	Content    string      `json:"content" bson:"content"`
	Timestamp  string      `json:"timestamp" bson:"timestamp"`
	FromUserID string      `json:"fromUserId,omitempty" bson:"fromUserId,omitempty"`
	ToUserID   string      `json:"toUserId,omitempty" bson:"toUserId,omitempty"`
}

// NewSystemMessage builds a server-originated notice.
func NewSystemMessage(content string, at time.Time) Message {
	return Message{
		Type:      TypeSystem,
		Content:   content,
		Timestamp: FormatTimestamp(at),
	}
}

// WithType returns a copy of m relabelled for a particular recipient.
func (m Message) WithType(t MessageType) Message {
	m.Type = t
	return m
}

// FormatTimestamp renders t the way every outbound message carries it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
