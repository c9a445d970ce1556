package relay

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-relay/backend/internal/model/chat"
	relayService "github.com/zhouzirui/z-relay/backend/internal/service/relay"
	"github.com/zhouzirui/z-relay/backend/pkg/utils"
)

// State 是只读接口所需的中继状态
type State interface {
	Online(ctx context.Context) ([]chat.ClientRecord, error)
	History(ctx context.Context) ([]chat.Message, error)
}

// Handler 中继状态的HTTP处理器
type Handler struct {
	state State
	log   *zap.Logger
}

// New 创建中继状态处理器
func New(state State, log *zap.Logger) *Handler {
	return &Handler{
		state: state,
		log:   log.Named("api"),
	}
}

// RegisterRoutes 注册中继状态相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/users", h.handleUsers)
	r.Get("/history", h.handleHistory)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUsers 返回当前在线用户
func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.state.Online(r.Context())
	if err != nil {
		h.respondStateError(w, err)
		return
	}
	if users == nil {
		users = []chat.ClientRecord{}
	}
	utils.RespondSnapshot(w, chat.UserListFrame{Type: chat.FrameUserList, Users: users})
}

// handleHistory 返回历史消息快照
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.state.History(r.Context())
	if err != nil {
		h.respondStateError(w, err)
		return
	}
	if history == nil {
		history = []chat.Message{}
	}
	utils.RespondSnapshot(w, history)
}

func (h *Handler) respondStateError(w http.ResponseWriter, err error) {
	if errors.Is(err, relayService.ErrHubClosed) {
		utils.RespondError(w, http.StatusServiceUnavailable, "relay is shutting down")
		return
	}
	h.log.Warn("read relay state failed", zap.Error(err))
	utils.RespondError(w, http.StatusInternalServerError, "relay state unavailable")
}
