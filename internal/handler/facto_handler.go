package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/fkt/internal/facto"
	"github.com/hitoshi/fkt/internal/model"
)

// FactoServiceInterface は事実ハンドラーが必要とするサービスインターフェース。
type FactoServiceInterface interface {
	Check(descricao string) facto.ValidationResult
	ListByProcesso(ctx context.Context, userID, processoID string) ([]*model.Facto, error)
	Create(ctx context.Context, userID, processoID string, in facto.Input) (*model.Facto, error)
	Update(ctx context.Context, userID, factoID string, in facto.Input) (*model.Facto, error)
	Delete(ctx context.Context, userID, factoID string) error
}

// FactoHandler は事実（Facto）管理のHTTPハンドラー。
type FactoHandler struct {
	service FactoServiceInterface
}

// NewFactoHandler はFactoHandlerを生成する。
func NewFactoHandler(service FactoServiceInterface) *FactoHandler {
	return &FactoHandler{service: service}
}

// factoRequest は事実の作成・更新リクエストのボディ。
type factoRequest struct {
	Descricao   string `json:"descricao"`
	DataFacto   string `json:"data_facto"`
	GrauCerteza string `json:"grau_certeza"`
	Observacoes string `json:"observacoes"`
	DocumentoID string `json:"documento_id"`
}

func (req factoRequest) toInput() facto.Input {
	return facto.Input{
		Descricao:   req.Descricao,
		DataFacto:   req.DataFacto,
		GrauCerteza: req.GrauCerteza,
		Observacoes: req.Observacoes,
		DocumentoID: req.DocumentoID,
	}
}

// factoResponse は事実のAPIレスポンス。
type factoResponse struct {
	ID          string    `json:"id"`
	ProcessoID  string    `json:"processo_id"`
	Descricao   string    `json:"descricao"`
	DataFacto   *string   `json:"data_facto"`
	GrauCerteza string    `json:"grau_certeza"`
	Observacoes *string   `json:"observacoes"`
	DocumentoID *string   `json:"documento_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type validateRequest struct {
	Descricao string `json:"descricao"`
}

// validateResponse は記述検証の結果。
type validateResponse struct {
	OK      bool   `json:"ok"`
	Term    string `json:"term,omitempty"`
	Message string `json:"message,omitempty"`
}

// Validate は事実記述を検証する。保存は行わない。
// POST /api/factos/validate
func (h *FactoHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	result := h.service.Check(req.Descricao)
	writeJSON(w, http.StatusOK, validateResponse{
		OK:      result.OK,
		Term:    result.Term,
		Message: result.Message,
	})
}

// ListFactos は案件に属する事実の一覧を返す。
// GET /api/processos/{id}/factos
func (h *FactoHandler) ListFactos(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	factos, err := h.service.ListByProcesso(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]factoResponse, 0, len(factos))
	for _, f := range factos {
		resp = append(resp, toFactoResponse(f))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateFacto は案件に事実を追加する。
// POST /api/processos/{id}/factos
func (h *FactoHandler) CreateFacto(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req factoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	f, err := h.service.Create(r.Context(), userID, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toFactoResponse(f))
}

// UpdateFacto は事実を更新する。
// PUT /api/factos/{id}
func (h *FactoHandler) UpdateFacto(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req factoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	f, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFactoResponse(f))
}

// DeleteFacto は事実を削除する。
// DELETE /api/factos/{id}
func (h *FactoHandler) DeleteFacto(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toFactoResponse はmodel.FactoからAPIレスポンスに変換する。
func toFactoResponse(f *model.Facto) factoResponse {
	resp := factoResponse{
		ID:          f.ID,
		ProcessoID:  f.ProcessoID,
		Descricao:   f.Descricao,
		GrauCerteza: string(f.GrauCerteza),
		Observacoes: f.Observacoes,
		DocumentoID: f.DocumentoID,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
	if f.DataFacto != nil {
		d := f.DataFacto.Format(time.DateOnly)
		resp.DataFacto = &d
	}
	return resp
}
