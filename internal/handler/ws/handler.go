package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-relay/backend/internal/config"
	"github.com/zhouzirui/z-relay/backend/internal/service/relay"
)

// Relay is the part of the hub the transport drives.
type Relay interface {
	Connect(ctx context.Context, clientID string, conn relay.Conn) error
	Receive(ctx context.Context, conn relay.Conn, payload []byte) error
	Disconnect(ctx context.Context, conn relay.Conn) error
}

// Handler upgrades HTTP requests and pumps frames between sockets and the hub.
type Handler struct {
	relay      Relay
	upgrader   websocket.Upgrader
	cookieName string
	sendBuffer int
	log        *zap.Logger
}

// New 创建 WebSocket 处理器
func New(r Relay, cfg config.RelayConfig, log *zap.Logger) *Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if cfg.AllowAnyOrigin {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}

	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = "userId"
	}

	return &Handler{
		relay:      r,
		upgrader:   upgrader,
		cookieName: cookieName,
		sendBuffer: cfg.SendBuffer,
		log:        log.Named("websocket"),
	}
}

// RegisterRoutes 注册 WebSocket 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientID, minted := resolveClientID(r, h.cookieName)

	var header http.Header
	if minted {
		header = http.Header{}
		header.Add("Set-Cookie", identityCookie(h.cookieName, clientID).String())
	}

	conn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := newClient(conn, h.sendBuffer)
	go c.writePump()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := h.relay.Connect(ctx, clientID, c); err != nil {
		h.log.Info("connection refused", zap.String("client", clientID), zap.Error(err))
		_ = c.Close()
		return
	}
	defer func() {
		_ = c.Close()
		// The request context may already be gone; the hub still has to hear about it.
		if err := h.relay.Disconnect(context.Background(), c); err != nil && !errors.Is(err, relay.ErrHubClosed) {
			h.log.Warn("disconnect not delivered", zap.String("client", clientID), zap.Error(err))
		}
	}()

	h.log.Debug("connection open", zap.String("client", clientID), zap.Bool("minted", minted))
	h.readLoop(ctx, c, clientID)
}

func (h *Handler) readLoop(ctx context.Context, c *client, clientID string) {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.log.Info("read error", zap.String("client", clientID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := h.relay.Receive(ctx, c, payload); err != nil {
			h.log.Debug("frame not delivered", zap.String("client", clientID), zap.Error(err))
			return
		}
	}
}
