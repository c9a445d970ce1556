package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-relay/backend/internal/config"
	relayHandler "github.com/zhouzirui/z-relay/backend/internal/handler/relay"
	"github.com/zhouzirui/z-relay/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/z-relay/backend/internal/middleware"
	relayService "github.com/zhouzirui/z-relay/backend/internal/service/relay"
)

// NewRouter wires HTTP routes to the relay hub.
func NewRouter(hub *relayService.Hub, cfg config.RelayConfig, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// WebSocket upgrades bypass CORS; origin checks live in the upgrader.
	ws.New(hub, cfg, log).RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.CORS)
		relayHandler.New(hub, log).RegisterRoutes(api)
	})

	return r
}
