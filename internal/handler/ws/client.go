package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	closeWait  = time.Second
	// maxFrameSize bounds a single inbound frame.
	maxFrameSize = 64 * 1024
)

var (
	errClientClosed   = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

// client adapts a websocket connection to relay.Conn. The hub only ever
// enqueues; writePump is the sole writer of data frames.
type client struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn, buffer int) *client {
	if buffer < 1 {
		buffer = 1
	}
	return &client{
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *client) Send(data []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		// A peer that cannot keep up is dropped; its read loop then runs
		// the normal disconnect sequence.
		_ = c.Close()
		return errSendBufferFull
	}
}

func (c *client) IsOpen() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Close marks the client closed and tears down the socket in the background,
// so callers on the hub goroutine never wait on the peer. Safe to call from
// any goroutine, any number of times.
func (c *client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		go c.teardown()
	})
	return nil
}

func (c *client) teardown() {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeWait))
	_ = c.conn.Close()
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
