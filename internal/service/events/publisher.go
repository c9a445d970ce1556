// Package events mirrors relayed messages to an external bus.
package events

import (
	"context"

	"github.com/zhouzirui/z-relay/backend/internal/model/chat"
)

// Publisher receives every canonical message after it has been stored.
type Publisher interface {
	Publish(ctx context.Context, msg chat.Message) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, chat.Message) error { return nil }
func (Nop) Close() error                                 { return nil }
