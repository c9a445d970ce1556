package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/z-relay/backend/internal/model/chat"
)

var errFakeClosed = errors.New("fake connection closed")

type fakeConn struct {
	name string

	mu     sync.Mutex
	frames [][]byte
	open   bool
}

func newFakeConn(name string) *fakeConn {
	return &fakeConn{name: name, open: true}
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return errFakeClosed
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) raw() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// typeOf returns the frame's type tag, or "history" for a bare array.
func typeOf(t *testing.T, frame []byte) string {
	t.Helper()
	if len(frame) > 0 && frame[0] == '[' {
		return "history"
	}
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil {
		t.Fatalf("undecodable frame %s: %v", frame, err)
	}
	return probe.Type
}

func (c *fakeConn) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, f := range c.raw() {
		out = append(out, typeOf(t, f))
	}
	return out
}

// messages decodes every frame that is a chat message.
func (c *fakeConn) messages(t *testing.T) []chat.Message {
	t.Helper()
	var out []chat.Message
	for _, f := range c.raw() {
		switch typeOf(t, f) {
		case string(chat.TypeSystem), string(chat.TypeSent), string(chat.TypeReceived), string(chat.TypePrivate):
			var m chat.Message
			if err := json.Unmarshal(f, &m); err != nil {
				t.Fatalf("decode message: %v", err)
			}
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) withContent(t *testing.T, content string) []chat.Message {
	t.Helper()
	var out []chat.Message
	for _, m := range c.messages(t) {
		if m.Content == content {
			out = append(out, m)
		}
	}
	return out
}

// lastUserList returns the ids of the most recent presence frame.
func (c *fakeConn) lastUserList(t *testing.T) []string {
	t.Helper()
	frames := c.raw()
	for i := len(frames) - 1; i >= 0; i-- {
		if typeOf(t, frames[i]) != chat.FrameUserList {
			continue
		}
		var list chat.UserListFrame
		if err := json.Unmarshal(frames[i], &list); err != nil {
			t.Fatalf("decode user list: %v", err)
		}
		ids := make([]string, 0, len(list.Users))
		for _, u := range list.Users {
			ids = append(ids, u.ID)
		}
		return ids
	}
	t.Fatalf("%s received no user list", c.name)
	return nil
}

// recordingPublisher keeps every published message in order.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []chat.Message
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, msg chat.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *recordingPublisher) snapshot() []chat.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]chat.Message(nil), p.msgs...)
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}
