package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/fkt/internal/oauth"
)

// ConnectionServiceInterface は外部サービス接続状態のハンドラーが必要とするサービスインターフェース。
type ConnectionServiceInterface interface {
	ListConnections(ctx context.Context, userID string) ([]oauth.ConnectionStatus, error)
	Disconnect(ctx context.Context, userID, service string) error
}

// ServiceHandler は外部サービス接続状態のHTTPハンドラー。
type ServiceHandler struct {
	service ConnectionServiceInterface
}

// NewServiceHandler はServiceHandlerを生成する。
func NewServiceHandler(service ConnectionServiceInterface) *ServiceHandler {
	return &ServiceHandler{service: service}
}

// connectionResponse は接続状態のAPIレスポンス。
type connectionResponse struct {
	Service     string     `json:"service"`
	Connected   bool       `json:"connected"`
	ConnectedAt *time.Time `json:"connected_at"`
}

// ListConnections は対応サービスごとの接続状態を返す。
// GET /api/services
func (h *ServiceHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	statuses, err := h.service.ListConnections(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]connectionResponse, 0, len(statuses))
	for _, s := range statuses {
		resp = append(resp, connectionResponse{
			Service:     s.Service,
			Connected:   s.Connected,
			ConnectedAt: s.ConnectedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Disconnect は外部サービスの接続を解除する。
// DELETE /api/services/{service}
func (h *ServiceHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Disconnect(r.Context(), userID, chi.URLParam(r, "service")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
