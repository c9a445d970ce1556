package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-relay/backend/internal/config"
	"github.com/zhouzirui/z-relay/backend/internal/model/chat"
	"github.com/zhouzirui/z-relay/backend/internal/service/events"
	"github.com/zhouzirui/z-relay/backend/internal/store"
)

// ErrHubClosed is returned once the hub's Run loop has exited.
var ErrHubClosed = errors.New("relay hub closed")

// Options configures a Hub.
type Options struct {
	HistoryLimit    int
	WelcomeMode     config.WelcomeMode
	DuplicatePolicy config.DuplicatePolicy
	// Clock is injectable for tests; nil means time.Now.
	Clock func() time.Time
}

// OptionsFromConfig maps relay configuration onto hub options.
func OptionsFromConfig(cfg config.RelayConfig) Options {
	return Options{
		HistoryLimit:    cfg.HistoryLimit,
		WelcomeMode:     cfg.WelcomeMode,
		DuplicatePolicy: cfg.DuplicatePolicy,
	}
}

type eventKind int

const (
	evConnect eventKind = iota
	evMessage
	evDisconnect
	evQuery
)

type event struct {
	kind     eventKind
	clientID string
	conn     Conn
	payload  []byte
	query    func()
	reply    chan error
}

type connState int

const (
	stateConnecting connState = iota
	stateOpen
)

// connEntry tracks a connection the hub has accepted. Closed connections are
// removed, so absence means CLOSED.
type connEntry struct {
	clientID string
	state    connState
}

// Hub owns every piece of relay state and applies client events one at a
// time on its Run goroutine.
type Hub struct {
	opts      Options
	log       *zap.Logger
	store     store.Store
	publisher events.Publisher
	writer    *Writer

	registry *Registry
	history  *History
	clients  Clients
	presence *Presence
	router   *Router
	conns    map[Conn]*connEntry

	events chan event
	done   chan struct{}
}

// NewHub wires a hub. publisher may be nil.
func NewHub(opts Options, st store.Store, publisher events.Publisher, writer *Writer, log *zap.Logger) *Hub {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.WelcomeMode == "" {
		opts.WelcomeMode = config.WelcomeSelf
	}
	if publisher == nil {
		publisher = events.Nop{}
	}

	registry := NewRegistry(opts.DuplicatePolicy)
	clients := make(Clients)
	return &Hub{
		opts:      opts,
		log:       log.Named("hub"),
		store:     st,
		publisher: publisher,
		writer:    writer,
		registry:  registry,
		history:   NewHistory(opts.HistoryLimit),
		clients:   clients,
		presence:  NewPresence(registry, clients),
		router:    NewRouter(registry),
		conns:     make(map[Conn]*connEntry),
		events:    make(chan event),
		done:      make(chan struct{}),
	}
}

// Restore loads persisted history and client records. It must be called
// before Run. Load failures are logged and leave the hub empty.
func (h *Hub) Restore(ctx context.Context) {
	messages, err := h.store.LoadMessages(ctx)
	if err != nil {
		h.log.Warn("load messages failed, starting with empty history", zap.Error(err))
	} else {
		h.history.Restore(messages)
	}

	clients, err := h.store.LoadClients(ctx)
	if err != nil {
		h.log.Warn("load clients failed, starting with no client records", zap.Error(err))
	} else {
		for id, record := range clients {
			h.clients[id] = record
		}
	}

	h.log.Info("state restored", zap.Int("messages", h.history.Len()), zap.Int("clients", len(h.clients)))
}

// Run processes events until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case ev := <-h.events:
			h.handle(ev)
		}
	}
}

// Connect registers conn for clientID and runs the join sequence. Under the
// reject policy it returns ErrDuplicateSession and the caller should close
// conn.
func (h *Hub) Connect(ctx context.Context, clientID string, conn Conn) error {
	return h.call(ctx, event{kind: evConnect, clientID: clientID, conn: conn})
}

// Receive hands one inbound frame from conn to the hub.
func (h *Hub) Receive(ctx context.Context, conn Conn, payload []byte) error {
	return h.call(ctx, event{kind: evMessage, conn: conn, payload: payload})
}

// Disconnect reports that conn has closed.
func (h *Hub) Disconnect(ctx context.Context, conn Conn) error {
	return h.call(ctx, event{kind: evDisconnect, conn: conn})
}

// Online returns the current presence snapshot.
func (h *Hub) Online(ctx context.Context) ([]chat.ClientRecord, error) {
	var out []chat.ClientRecord
	err := h.call(ctx, event{kind: evQuery, query: func() { out = h.presence.Snapshot() }})
	return out, err
}

// History returns a copy of the history buffer.
func (h *Hub) History(ctx context.Context) ([]chat.Message, error) {
	var out []chat.Message
	err := h.call(ctx, event{kind: evQuery, query: func() { out = h.history.Snapshot() }})
	return out, err
}

// call delivers ev to the Run loop and waits until it has been handled.
func (h *Hub) call(ctx context.Context, ev event) error {
	ev.reply = make(chan error, 1)
	select {
	case h.events <- ev:
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-ev.reply:
		return err
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) handle(ev event) {
	var err error
	switch ev.kind {
	case evConnect:
		err = h.onConnect(ev.clientID, ev.conn)
	case evMessage:
		h.onMessage(ev.conn, ev.payload)
	case evDisconnect:
		h.onDisconnect(ev.conn)
	case evQuery:
		ev.query()
	}
	ev.reply <- err
}

func (h *Hub) onConnect(clientID string, conn Conn) error {
	now := h.opts.Clock()
	entry := &connEntry{clientID: clientID, state: stateConnecting}
	h.conns[conn] = entry

	_, replaced, err := h.registry.Register(clientID, conn, now)
	if err != nil {
		delete(h.conns, conn)
		h.log.Info("connection rejected", zap.String("client", clientID), zap.Error(err))
		return err
	}
	if replaced != nil {
		if h.opts.DuplicatePolicy == config.DuplicateEvict {
			delete(h.conns, replaced)
			if err := replaced.Close(); err != nil {
				h.log.Debug("close evicted connection", zap.String("client", clientID), zap.Error(err))
			}
			h.log.Info("previous session evicted", zap.String("client", clientID))
		} else {
			h.log.Info("previous session superseded", zap.String("client", clientID))
		}
	}

	h.clients.Upsert(clientID, now)
	h.persistClients()
	entry.state = stateOpen

	h.sendJSON(conn, chat.UserIDFrame{Type: chat.FrameUserID, UserID: clientID})
	h.sendJSON(conn, h.history.Snapshot())

	welcome := h.welcomeMessage(clientID, now)
	h.history.Append(welcome)
	h.persistMessages()
	h.publish(welcome)
	if h.opts.WelcomeMode == config.WelcomeBroadcast {
		h.broadcast(welcome)
	} else {
		h.sendJSON(conn, welcome)
	}

	h.broadcastPresence()
	h.log.Info("client connected", zap.String("client", clientID), zap.Int("online", h.registry.Len()))
	return nil
}

func (h *Hub) onMessage(conn Conn, payload []byte) {
	entry, ok := h.conns[conn]
	if !ok || entry.state != stateOpen {
		h.log.Debug("ignoring frame from closed connection")
		return
	}

	in := ParseInbound(payload)
	if strings.TrimSpace(in.Content) == "" {
		h.log.Debug("ignoring empty message", zap.String("client", entry.clientID))
		return
	}

	now := h.opts.Clock()
	plan := h.router.Route(entry.clientID, conn, in, now)

	h.history.Append(plan.Canonical)
	h.persistMessages()
	h.clients.Touch(entry.clientID, now)
	h.registry.Touch(entry.clientID, conn, now)
	h.persistClients()

	for _, d := range plan.Deliveries {
		h.sendJSON(d.Conn, d.Message)
	}
	h.publish(plan.Canonical)

	h.log.Debug("message routed",
		zap.String("from", entry.clientID),
		zap.String("to", in.ToUserID),
		zap.String("type", string(plan.Canonical.Type)),
		zap.Int("deliveries", len(plan.Deliveries)))
}

func (h *Hub) onDisconnect(conn Conn) {
	entry, ok := h.conns[conn]
	if !ok {
		return
	}
	delete(h.conns, conn)

	if !h.registry.Unregister(entry.clientID, conn) {
		h.log.Info("superseded connection closed", zap.String("client", entry.clientID))
		return
	}

	now := h.opts.Clock()
	h.clients.Touch(entry.clientID, now)
	h.persistClients()

	msg := chat.NewSystemMessage(fmt.Sprintf("User %s disconnected", entry.clientID), now)
	h.history.Append(msg)
	h.persistMessages()
	h.publish(msg)
	h.broadcast(msg)

	h.broadcastPresence()
	h.log.Info("client disconnected", zap.String("client", entry.clientID), zap.Int("online", h.registry.Len()))
}

func (h *Hub) shutdown() {
	for conn := range h.conns {
		_ = conn.Close()
	}
	h.conns = make(map[Conn]*connEntry)
	h.log.Info("hub stopped")
}

func (h *Hub) welcomeMessage(clientID string, now time.Time) chat.Message {
	if h.opts.WelcomeMode == config.WelcomeBroadcast {
		return chat.NewSystemMessage(fmt.Sprintf("User %s joined the chat", clientID), now)
	}
	return chat.NewSystemMessage(fmt.Sprintf("Welcome to the chat! Your ID is %s", clientID), now)
}

func (h *Hub) broadcastPresence() {
	data, err := json.Marshal(h.presence.Frame())
	if err != nil {
		h.log.Error("encode presence", zap.Error(err))
		return
	}
	for _, s := range h.registry.Sessions() {
		h.sendRaw(s.Conn, data)
	}
}

func (h *Hub) broadcast(msg chat.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("encode message", zap.Error(err))
		return
	}
	for _, s := range h.registry.Sessions() {
		h.sendRaw(s.Conn, data)
	}
}

func (h *Hub) sendJSON(conn Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("encode frame", zap.Error(err))
		return
	}
	h.sendRaw(conn, data)
}

func (h *Hub) sendRaw(conn Conn, data []byte) {
	if !conn.IsOpen() {
		return
	}
	if err := conn.Send(data); err != nil {
		h.log.Debug("frame dropped", zap.Error(err))
	}
}

func (h *Hub) persistMessages() {
	if h.writer == nil {
		return
	}
	snapshot := h.history.Snapshot()
	h.writer.Submit("save messages", func(ctx context.Context) error {
		return h.store.SaveMessages(ctx, snapshot)
	})
}

func (h *Hub) persistClients() {
	if h.writer == nil {
		return
	}
	snapshot := h.clients.Copy()
	h.writer.Submit("save clients", func(ctx context.Context) error {
		return h.store.SaveClients(ctx, snapshot)
	})
}

func (h *Hub) publish(msg chat.Message) {
	if h.writer == nil {
		return
	}
	h.writer.Submit("publish message", func(ctx context.Context) error {
		return h.publisher.Publish(ctx, msg)
	})
}
