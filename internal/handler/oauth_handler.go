package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/hitoshi/fkt/internal/identity"
	"github.com/hitoshi/fkt/internal/middleware"
	"github.com/hitoshi/fkt/internal/oauth"
)

// 認可エンドポイントのエラーレスポンス本文。
const (
	authorizeErrUnauthorized   = "Unauthorized"
	authorizeErrInvalidService = "Invalid service"
	authorizeErrInternal       = "Internal error"
)

// OAuthServiceInterface はOAuthハンドラーが必要とするサービスインターフェース。
type OAuthServiceInterface interface {
	AuthorizeURL(userID, service string) (string, error)
	HandleCallback(ctx context.Context, params oauth.CallbackParams) oauth.Outcome
}

// OAuthHandler は外部サービス接続のOAuthフローを扱うHTTPハンドラー。
type OAuthHandler struct {
	service  OAuthServiceInterface
	verifier identity.Verifier
	appURL   string
}

// NewOAuthHandler はOAuthHandlerを生成する。
// appURLはコールバック完了後にブラウザを戻すアプリケーションのベースURL。
func NewOAuthHandler(service OAuthServiceInterface, verifier identity.Verifier, appURL string) *OAuthHandler {
	return &OAuthHandler{
		service:  service,
		verifier: verifier,
		appURL:   appURL,
	}
}

type authorizeRequest struct {
	Service string `json:"service"`
}

type authorizeResponse struct {
	URL string `json:"url"`
}

type authorizeErrorResponse struct {
	Error string `json:"error"`
}

// Authorize は外部サービスの認可URLを返す。
// POST /oauth/authorize
//
// 未知のサービスは資格情報の有無に関わらず400、資格情報が無効なら401、
// サービス未指定やボディ不正は400を返す。
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("authorize panic recovered",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			writeJSON(w, http.StatusInternalServerError, authorizeErrorResponse{Error: authorizeErrInternal})
		}
	}()

	var req authorizeRequest
	decodeErr := decodeJSON(w, r, &req)
	if decodeErr == nil && req.Service != "" && !oauth.IsKnownService(req.Service) {
		writeJSON(w, http.StatusBadRequest, authorizeErrorResponse{Error: authorizeErrInvalidService})
		return
	}

	token, ok := identity.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeJSON(w, http.StatusUnauthorized, authorizeErrorResponse{Error: authorizeErrUnauthorized})
		return
	}
	userID, err := h.verifier.Verify(token)
	if err != nil {
		slog.Warn("authorize credential rejected", slog.String("error", err.Error()))
		writeJSON(w, http.StatusUnauthorized, authorizeErrorResponse{Error: authorizeErrUnauthorized})
		return
	}
	middleware.AnnotateUserID(r.Context(), userID)

	if decodeErr != nil || req.Service == "" {
		writeJSON(w, http.StatusBadRequest, authorizeErrorResponse{Error: authorizeErrInvalidService})
		return
	}

	url, err := h.service.AuthorizeURL(userID, req.Service)
	if err != nil {
		if errors.Is(err, oauth.ErrUnknownService) {
			writeJSON(w, http.StatusBadRequest, authorizeErrorResponse{Error: authorizeErrInvalidService})
			return
		}
		slog.Error("failed to build authorization url",
			slog.String("user_id", userID),
			slog.String("service", req.Service),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, authorizeErrorResponse{Error: authorizeErrInternal})
		return
	}

	writeJSON(w, http.StatusOK, authorizeResponse{URL: url})
}

// Callback はプロバイダーからのリダイレクトを処理する。
// GET /oauth/callback?code=xxx&state=yyy
//
// 結果に関わらず常にプロフィール画面へ302でリダイレクトする。
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	outcome := h.service.HandleCallback(r.Context(), oauth.CallbackParams{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
	})

	if !outcome.Success() {
		slog.Info("oauth callback failed", slog.String("reason", outcome.Reason))
	}
	http.Redirect(w, r, outcome.RedirectURL(h.appURL), http.StatusFound)
}
