package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-relay/backend/internal/config"
	relayService "github.com/zhouzirui/z-relay/backend/internal/service/relay"
	"github.com/zhouzirui/z-relay/backend/internal/store"
)

func TestRouterServesAPI(t *testing.T) {
	hub := relayService.NewHub(relayService.Options{}, store.NewMemoryStore(), nil, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	router := NewRouter(hub, config.RelayConfig{CookieName: "userId", SendBuffer: 8}, zap.NewNop())

	for _, path := range []string{"/api/health", "/api/users", "/api/history"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func TestRouterRejectsPlainGetOnWebSocket(t *testing.T) {
	hub := relayService.NewHub(relayService.Options{}, store.NewMemoryStore(), nil, nil, zap.NewNop())
	router := NewRouter(hub, config.RelayConfig{CookieName: "userId", SendBuffer: 8}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-upgrade request, got %d", resp.Code)
	}
}
