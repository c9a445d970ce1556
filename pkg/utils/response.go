package utils

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("encode response failed", zap.Int("status", status), zap.Error(err))
	}
}

// RespondSnapshot 发送不可缓存的状态快照
func RespondSnapshot(w http.ResponseWriter, payload any) {
	w.Header().Set("Cache-Control", "no-store")
	RespondJSON(w, http.StatusOK, payload)
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}
