package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/fkt/internal/facto"
	"github.com/hitoshi/fkt/internal/middleware"
	"github.com/hitoshi/fkt/internal/model"
	"github.com/hitoshi/fkt/internal/oauth"
)

// --- モック定義 ---

// mockVerifier はidentity.Verifierのモック実装。
// tokensに登録されたトークンのみ受け付ける。
type mockVerifier struct {
	tokens map[string]string
	calls  int
}

func (m *mockVerifier) Verify(token string) (string, error) {
	m.calls++
	if userID, ok := m.tokens[token]; ok {
		return userID, nil
	}
	return "", errors.New("invalid token")
}

// mockOAuthService はOAuthServiceInterfaceのモック実装。
type mockOAuthService struct {
	authorizeURLFn   func(userID, service string) (string, error)
	handleCallbackFn func(ctx context.Context, params oauth.CallbackParams) oauth.Outcome
}

func (m *mockOAuthService) AuthorizeURL(userID, service string) (string, error) {
	if m.authorizeURLFn != nil {
		return m.authorizeURLFn(userID, service)
	}
	return "https://accounts.example.com/auth?service=" + service, nil
}

func (m *mockOAuthService) HandleCallback(ctx context.Context, params oauth.CallbackParams) oauth.Outcome {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, params)
	}
	return oauth.Outcome{Service: "gmail"}
}

// mockConnectionService はConnectionServiceInterfaceのモック実装。
type mockConnectionService struct {
	listConnectionsFn func(ctx context.Context, userID string) ([]oauth.ConnectionStatus, error)
	disconnectFn      func(ctx context.Context, userID, service string) error
}

func (m *mockConnectionService) ListConnections(ctx context.Context, userID string) ([]oauth.ConnectionStatus, error) {
	if m.listConnectionsFn != nil {
		return m.listConnectionsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockConnectionService) Disconnect(ctx context.Context, userID, service string) error {
	if m.disconnectFn != nil {
		return m.disconnectFn(ctx, userID, service)
	}
	return nil
}

// mockFactoService はFactoServiceInterfaceのモック実装。
type mockFactoService struct {
	checkFn          func(descricao string) facto.ValidationResult
	listByProcessoFn func(ctx context.Context, userID, processoID string) ([]*model.Facto, error)
	createFn         func(ctx context.Context, userID, processoID string, in facto.Input) (*model.Facto, error)
	updateFn         func(ctx context.Context, userID, factoID string, in facto.Input) (*model.Facto, error)
	deleteFn         func(ctx context.Context, userID, factoID string) error
}

func (m *mockFactoService) Check(descricao string) facto.ValidationResult {
	if m.checkFn != nil {
		return m.checkFn(descricao)
	}
	return facto.Validate(descricao)
}

func (m *mockFactoService) ListByProcesso(ctx context.Context, userID, processoID string) ([]*model.Facto, error) {
	if m.listByProcessoFn != nil {
		return m.listByProcessoFn(ctx, userID, processoID)
	}
	return []*model.Facto{}, nil
}

func (m *mockFactoService) Create(ctx context.Context, userID, processoID string, in facto.Input) (*model.Facto, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, processoID, in)
	}
	return nil, nil
}

func (m *mockFactoService) Update(ctx context.Context, userID, factoID string, in facto.Input) (*model.Facto, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, factoID, in)
	}
	return nil, nil
}

func (m *mockFactoService) Delete(ctx context.Context, userID, factoID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, factoID)
	}
	return nil
}

// --- ヘルパー ---

// withUserID はリクエストコンテキストにユーザーIDを設定するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParam はchiのURLパラメータを設定するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseAPIErrorResponse はAPIエラーレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp
}
