package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/z-relay/backend/internal/model/chat"
	relayService "github.com/zhouzirui/z-relay/backend/internal/service/relay"
)

type stubState struct {
	users   []chat.ClientRecord
	history []chat.Message
	err     error
}

func (s stubState) Online(context.Context) ([]chat.ClientRecord, error) {
	return s.users, s.err
}

func (s stubState) History(context.Context) ([]chat.Message, error) {
	return s.history, s.err
}

func setupRouter(t *testing.T, state State) *chi.Mux {
	r := chi.NewRouter()
	New(state, zaptest.NewLogger(t)).RegisterRoutes(r)
	return r
}

func serve(r http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestHealth(t *testing.T) {
	resp := serve(setupRouter(t, stubState{}), "/health")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestUsersReturnsPresenceFrame(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	state := stubState{users: []chat.ClientRecord{{ID: "a", ConnectedAt: now, LastSeen: now}}}

	resp := serve(setupRouter(t, state), "/users")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var frame chat.UserListFrame
	if err := json.Unmarshal(resp.Body.Bytes(), &frame); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if frame.Type != chat.FrameUserList || len(frame.Users) != 1 || frame.Users[0].ID != "a" {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestHistoryEmptyIsArray(t *testing.T) {
	resp := serve(setupRouter(t, stubState{}), "/history")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Body.String(); got != "[]\n" {
		t.Fatalf("expected empty array, got %q", got)
	}
	if resp.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("expected no-store cache header")
	}
}

func TestClosedHubIsUnavailable(t *testing.T) {
	resp := serve(setupRouter(t, stubState{err: relayService.ErrHubClosed}), "/users")
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}
