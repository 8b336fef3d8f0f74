package oauth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/fkt/internal/model"
	"github.com/hitoshi/fkt/internal/repository"
)

// --- モック定義 ---

type mockProvider struct {
	authCodeURLFn func(state string, scopes []string) string
	exchangeFn    func(ctx context.Context, code string) (*TokenGrant, error)

	mu            sync.Mutex
	exchangeCalls int
}

func (m *mockProvider) AuthCodeURL(state string, scopes []string) string {
	if m.authCodeURLFn != nil {
		return m.authCodeURLFn(state, scopes)
	}
	return "https://accounts.google.com/o/oauth2/auth?state=" + url.QueryEscape(state) +
		"&scope=" + url.QueryEscape(strings.Join(scopes, " "))
}

func (m *mockProvider) Exchange(ctx context.Context, code string) (*TokenGrant, error) {
	m.mu.Lock()
	m.exchangeCalls++
	m.mu.Unlock()
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code)
	}
	return &TokenGrant{AccessToken: "access-" + code}, nil
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exchangeCalls
}

// memTokenRepo は(user_id, provider)をキーにしたインメモリのトークンストア。
type memTokenRepo struct {
	upsertFn func(ctx context.Context, token *model.OAuthToken) error
	deleteFn func(ctx context.Context, userID, provider string) error

	mu     sync.Mutex
	tokens map[string]*model.OAuthToken
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: make(map[string]*model.OAuthToken)}
}

func (m *memTokenRepo) Upsert(ctx context.Context, token *model.OAuthToken) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.tokens[token.UserID+"|"+token.Provider] = &cp
	return nil
}

func (m *memTokenRepo) FindByUserAndProvider(_ context.Context, userID, provider string) (*model.OAuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[userID+"|"+provider], nil
}

func (m *memTokenRepo) DeleteByUserAndProvider(ctx context.Context, userID, provider string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, provider)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, userID+"|"+provider)
	return nil
}

func (m *memTokenRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

type mockConnectionRepo struct {
	upsertFn     func(ctx context.Context, conn *model.ServiceConnection) error
	disconnectFn func(ctx context.Context, userID, service string) error
	listFn       func(ctx context.Context, userID string) ([]*model.ServiceConnection, error)

	mu       sync.Mutex
	upserted []*model.ServiceConnection
}

func (m *mockConnectionRepo) Upsert(ctx context.Context, conn *model.ServiceConnection) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, conn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted = append(m.upserted, conn)
	return nil
}

func (m *mockConnectionRepo) Disconnect(ctx context.Context, userID, service string) error {
	if m.disconnectFn != nil {
		return m.disconnectFn(ctx, userID, service)
	}
	return nil
}

func (m *mockConnectionRepo) ListByUserID(ctx context.Context, userID string) ([]*model.ServiceConnection, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

type spyRecorder struct {
	mu        sync.Mutex
	authorize []string
	outcomes  []string
}

func (s *spyRecorder) RecordAuthorize(service string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorize = append(s.authorize, service)
}

func (s *spyRecorder) RecordCallbackOutcome(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome)
}

// --- compile-time interface checks ---
var _ Provider = (*mockProvider)(nil)
var _ repository.OAuthTokenRepository = (*memTokenRepo)(nil)
var _ repository.ServiceConnectionRepository = (*mockConnectionRepo)(nil)
var _ MetricsRecorder = (*spyRecorder)(nil)

func mustState(t *testing.T, userID, service string) string {
	t.Helper()
	s, err := EncodeState(State{UserID: userID, Service: service})
	if err != nil {
		t.Fatalf("failed to encode state: %v", err)
	}
	return s
}

func fixedNow(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

// --- AuthorizeURL ---

func TestAuthorizeURL_EmbedsStateAndScopes(t *testing.T) {
	provider := &mockProvider{}
	rec := &spyRecorder{}
	svc := NewService(provider, newMemTokenRepo(), &mockConnectionRepo{}, rec)

	raw, err := svc.AuthorizeURL("user-1", "gmail")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse URL: %v", err)
	}

	state, err := DecodeState(u.Query().Get("state"))
	if err != nil {
		t.Fatalf("state should decode: %v", err)
	}
	if state.UserID != "user-1" || state.Service != "gmail" {
		t.Errorf("unexpected state: %+v", state)
	}

	scope := u.Query().Get("scope")
	for _, want := range []string{"openid", "email", "https://www.googleapis.com/auth/gmail.readonly"} {
		if !strings.Contains(scope, want) {
			t.Errorf("scope should contain %q, got %q", want, scope)
		}
	}

	if len(rec.authorize) != 1 || rec.authorize[0] != "gmail" {
		t.Errorf("expected authorize metric for gmail, got %v", rec.authorize)
	}
	if provider.calls() != 0 {
		t.Error("authorize must not exchange tokens")
	}
}

func TestAuthorizeURL_UnknownService(t *testing.T) {
	svc := NewService(&mockProvider{}, newMemTokenRepo(), &mockConnectionRepo{}, nil)

	_, err := svc.AuthorizeURL("user-1", "dropbox")
	if !errors.Is(err, ErrUnknownService) {
		t.Errorf("expected ErrUnknownService, got %v", err)
	}
}

func TestAuthorizeURL_EmptyUserID(t *testing.T) {
	svc := NewService(&mockProvider{}, newMemTokenRepo(), &mockConnectionRepo{}, nil)

	if _, err := svc.AuthorizeURL("", "gmail"); err == nil {
		t.Error("expected error for empty user ID")
	}
}

// --- HandleCallback ---

func TestHandleCallback_Success(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	provider := &mockProvider{
		exchangeFn: func(_ context.Context, code string) (*TokenGrant, error) {
			if code != "good-code" {
				t.Errorf("unexpected code %q", code)
			}
			return &TokenGrant{
				AccessToken:  "at",
				RefreshToken: "rt",
				ExpiresIn:    3600 * time.Second,
				Scopes:       []string{"openid", "email"},
			}, nil
		},
	}
	tokens := newMemTokenRepo()
	conns := &mockConnectionRepo{}
	rec := &spyRecorder{}
	svc := NewService(provider, tokens, conns, rec)
	svc.now = fixedNow(now)

	outcome := svc.HandleCallback(context.Background(), CallbackParams{
		Code:  "good-code",
		State: mustState(t, "user-1", "gmail"),
	})

	if !outcome.Success() || outcome.Service != "gmail" {
		t.Fatalf("expected success for gmail, got %+v", outcome)
	}

	tok, _ := tokens.FindByUserAndProvider(context.Background(), "user-1", "gmail")
	if tok == nil {
		t.Fatal("expected token to be stored")
	}
	if tok.AccessToken != "at" {
		t.Errorf("expected access token at, got %q", tok.AccessToken)
	}
	if tok.RefreshToken == nil || *tok.RefreshToken != "rt" {
		t.Errorf("expected refresh token rt, got %v", tok.RefreshToken)
	}
	if tok.ExpiresAt == nil || !tok.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("expected expires_at=%v, got %v", now.Add(time.Hour), tok.ExpiresAt)
	}

	if len(conns.upserted) != 1 {
		t.Fatalf("expected one connection upsert, got %d", len(conns.upserted))
	}
	c := conns.upserted[0]
	if !c.Connected || c.ConnectedAt == nil || c.UserID != "user-1" || c.Service != "gmail" {
		t.Errorf("unexpected connection: %+v", c)
	}

	if len(rec.outcomes) != 1 || rec.outcomes[0] != "success" {
		t.Errorf("expected success metric, got %v", rec.outcomes)
	}
}

func TestHandleCallback_NoExpiresInStoresNullExpiry(t *testing.T) {
	tokens := newMemTokenRepo()
	svc := NewService(&mockProvider{}, tokens, &mockConnectionRepo{}, nil)

	outcome := svc.HandleCallback(context.Background(), CallbackParams{
		Code:  "c",
		State: mustState(t, "user-1", "google_drive"),
	})
	if !outcome.Success() {
		t.Fatalf("expected success, got %+v", outcome)
	}

	tok, _ := tokens.FindByUserAndProvider(context.Background(), "user-1", "google_drive")
	if tok == nil {
		t.Fatal("expected token to be stored")
	}
	if tok.ExpiresAt != nil {
		t.Errorf("expected nil expires_at, got %v", tok.ExpiresAt)
	}
	if tok.RefreshToken != nil {
		t.Errorf("expected nil refresh token, got %v", *tok.RefreshToken)
	}
	if tok.Scopes == nil {
		t.Error("scopes should be stored as an empty list, not nil")
	}
}

func TestHandleCallback_ProviderErrorSkipsExchange(t *testing.T) {
	provider := &mockProvider{}
	tokens := newMemTokenRepo()
	rec := &spyRecorder{}
	svc := NewService(provider, tokens, &mockConnectionRepo{}, rec)

	outcome := svc.HandleCallback(context.Background(), CallbackParams{
		Error: "access_denied",
		Code:  "ignored",
		State: mustState(t, "user-1", "gmail"),
	})

	if outcome.Success() || outcome.Reason != "access_denied" {
		t.Errorf("expected access_denied, got %+v", outcome)
	}
	if provider.calls() != 0 {
		t.Error("token exchange must not be attempted")
	}
	if tokens.count() != 0 {
		t.Error("no token should be stored")
	}
	if rec.outcomes[0] != "provider_error" {
		t.Errorf("expected provider_error metric, got %v", rec.outcomes)
	}
}

func TestHandleCallback_MissingParams(t *testing.T) {
	tests := []struct {
		name   string
		params CallbackParams
	}{
		{"no code", CallbackParams{State: "abc"}},
		{"no state", CallbackParams{Code: "abc"}},
		{"nothing", CallbackParams{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockProvider{}
			svc := NewService(provider, newMemTokenRepo(), &mockConnectionRepo{}, nil)

			outcome := svc.HandleCallback(context.Background(), tt.params)
			if outcome.Reason != ReasonMissingParams {
				t.Errorf("expected missing_params, got %+v", outcome)
			}
			if provider.calls() != 0 {
				t.Error("token exchange must not be attempted")
			}
		})
	}
}

func TestHandleCallback_InvalidStateSkipsExchange(t *testing.T) {
	tests := []struct {
		name  string
		state string
	}{
		{"garbage", "%%%not-a-state"},
		{"missing service", mustStateRaw(`{"userId":"u1"}`)},
		{"unknown service", mustState(t, "u1", "dropbox")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockProvider{}
			tokens := newMemTokenRepo()
			svc := NewService(provider, tokens, &mockConnectionRepo{}, nil)

			outcome := svc.HandleCallback(context.Background(), CallbackParams{Code: "c", State: tt.state})
			if outcome.Reason != ReasonInvalidState {
				t.Errorf("expected invalid_state, got %+v", outcome)
			}
			if provider.calls() != 0 {
				t.Error("token exchange must not be attempted")
			}
			if tokens.count() != 0 {
				t.Error("no token should be stored")
			}
		})
	}
}

func mustStateRaw(payload string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func TestHandleCallback_ExchangeFailure(t *testing.T) {
	provider := &mockProvider{
		exchangeFn: func(context.Context, string) (*TokenGrant, error) {
			return nil, errors.New("invalid_grant")
		},
	}
	tokens := newMemTokenRepo()
	conns := &mockConnectionRepo{}
	svc := NewService(provider, tokens, conns, nil)

	outcome := svc.HandleCallback(context.Background(), CallbackParams{
		Code:  "bad",
		State: mustState(t, "user-1", "gmail"),
	})

	if outcome.Reason != ReasonTokenExchangeFailed {
		t.Errorf("expected token_exchange_failed, got %+v", outcome)
	}
	if tokens.count() != 0 || len(conns.upserted) != 0 {
		t.Error("nothing should be persisted after a failed exchange")
	}
}

func TestHandleCallback_EmptyAccessTokenIsExchangeFailure(t *testing.T) {
	provider := &mockProvider{
		exchangeFn: func(context.Context, string) (*TokenGrant, error) {
			return &TokenGrant{}, nil
		},
	}
	svc := NewService(provider, newMemTokenRepo(), &mockConnectionRepo{}, nil)

	outcome := svc.HandleCallback(context.Background(), CallbackParams{
		Code:  "c",
		State: mustState(t, "user-1", "gmail"),
	})
	if outcome.Reason != ReasonTokenExchangeFailed {
		t.Errorf("expected token_exchange_failed, got %+v", outcome)
	}
}

func TestHandleCallback_StorageFailure(t *testing.T) {
	tokens := newMemTokenRepo()
	tokens.upsertFn = func(context.Context, *model.OAuthToken) error {
		return errors.New("connection refused")
	}
	conns := &mockConnectionRepo{}
	svc := NewService(&mockProvider{}, tokens, conns, nil)

	outcome := svc.HandleCallback(context.Background(), CallbackParams{
		Code:  "c",
		State: mustState(t, "user-1", "gmail"),
	})

	if outcome.Reason != ReasonStorageFailed {
		t.Errorf("expected storage_failed, got %+v", outcome)
	}
	if len(conns.upserted) != 0 {
		t.Error("connection flag must not be set when token storage fails")
	}
}

func TestHandleCallback_ConnectionFlagFailureIsNotTerminal(t *testing.T) {
	tokens := newMemTokenRepo()
	conns := &mockConnectionRepo{
		upsertFn: func(context.Context, *model.ServiceConnection) error {
			return errors.New("permission denied")
		},
	}
	svc := NewService(&mockProvider{}, tokens, conns, nil)

	outcome := svc.HandleCallback(context.Background(), CallbackParams{
		Code:  "c",
		State: mustState(t, "user-1", "google_calendar"),
	})

	if !outcome.Success() || outcome.Service != "google_calendar" {
		t.Errorf("expected success, got %+v", outcome)
	}
	if tokens.count() != 1 {
		t.Errorf("expected stored token, got %d", tokens.count())
	}
}

func TestHandleCallback_RepeatedCallbackKeepsSingleRecord(t *testing.T) {
	tokens := newMemTokenRepo()
	svc := NewService(&mockProvider{}, tokens, &mockConnectionRepo{}, nil)
	state := mustState(t, "user-1", "gmail")

	for _, code := range []string{"first", "second"} {
		if o := svc.HandleCallback(context.Background(), CallbackParams{Code: code, State: state}); !o.Success() {
			t.Fatalf("expected success for %s, got %+v", code, o)
		}
	}

	if tokens.count() != 1 {
		t.Errorf("expected exactly one token record, got %d", tokens.count())
	}
	tok, _ := tokens.FindByUserAndProvider(context.Background(), "user-1", "gmail")
	if tok.AccessToken != "access-second" {
		t.Errorf("expected latest token to win, got %q", tok.AccessToken)
	}
}

func TestHandleCallback_PanicBecomesInternalError(t *testing.T) {
	provider := &mockProvider{
		exchangeFn: func(context.Context, string) (*TokenGrant, error) {
			panic("boom")
		},
	}
	rec := &spyRecorder{}
	svc := NewService(provider, newMemTokenRepo(), &mockConnectionRepo{}, rec)

	outcome := svc.HandleCallback(context.Background(), CallbackParams{
		Code:  "c",
		State: mustState(t, "user-1", "gmail"),
	})

	if outcome.Reason != ReasonInternalError {
		t.Errorf("expected internal_error, got %+v", outcome)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != ReasonInternalError {
		t.Errorf("expected internal_error metric, got %v", rec.outcomes)
	}
}

// --- Disconnect / ListConnections ---

func TestDisconnect_RemovesTokenAndFlag(t *testing.T) {
	tokens := newMemTokenRepo()
	tokens.Upsert(context.Background(), &model.OAuthToken{UserID: "user-1", Provider: "gmail", AccessToken: "at"})

	var disconnected string
	conns := &mockConnectionRepo{
		disconnectFn: func(_ context.Context, userID, service string) error {
			disconnected = userID + "|" + service
			return nil
		},
	}
	svc := NewService(&mockProvider{}, tokens, conns, nil)

	if err := svc.Disconnect(context.Background(), "user-1", "gmail"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if disconnected != "user-1|gmail" {
		t.Errorf("expected disconnect for user-1|gmail, got %q", disconnected)
	}
	if tokens.count() != 0 {
		t.Error("token should be deleted")
	}
}

func TestDisconnect_UnknownService(t *testing.T) {
	svc := NewService(&mockProvider{}, newMemTokenRepo(), &mockConnectionRepo{}, nil)

	err := svc.Disconnect(context.Background(), "user-1", "dropbox")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidService {
		t.Errorf("expected INVALID_SERVICE error, got %v", err)
	}
}

func TestDisconnect_RepositoryError(t *testing.T) {
	conns := &mockConnectionRepo{
		disconnectFn: func(context.Context, string, string) error { return errors.New("db down") },
	}
	svc := NewService(&mockProvider{}, newMemTokenRepo(), conns, nil)

	if err := svc.Disconnect(context.Background(), "user-1", "gmail"); err == nil {
		t.Error("expected error")
	}
}

func TestListConnections_MergesKnownServices(t *testing.T) {
	connectedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	conns := &mockConnectionRepo{
		listFn: func(_ context.Context, userID string) ([]*model.ServiceConnection, error) {
			return []*model.ServiceConnection{
				{UserID: userID, Service: "google_drive", Connected: true, ConnectedAt: &connectedAt},
				{UserID: userID, Service: "gmail", Connected: false},
			}, nil
		},
	}
	svc := NewService(&mockProvider{}, newMemTokenRepo(), conns, nil)

	got, err := svc.ListConnections(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 services, got %d", len(got))
	}

	want := map[string]bool{"gmail": false, "google_calendar": false, "google_drive": true}
	for _, s := range got {
		if s.Connected != want[s.Service] {
			t.Errorf("%s: expected connected=%v, got %v", s.Service, want[s.Service], s.Connected)
		}
	}
	if got[2].Service != "google_drive" || got[2].ConnectedAt == nil {
		t.Errorf("expected google_drive with connected_at, got %+v", got[2])
	}
}

func TestListConnections_RepositoryError(t *testing.T) {
	conns := &mockConnectionRepo{
		listFn: func(context.Context, string) ([]*model.ServiceConnection, error) {
			return nil, errors.New("db down")
		},
	}
	svc := NewService(&mockProvider{}, newMemTokenRepo(), conns, nil)

	if _, err := svc.ListConnections(context.Background(), "user-1"); err == nil {
		t.Error("expected error")
	}
}
