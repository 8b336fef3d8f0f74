package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/hitoshi/fkt/internal/model"
	"github.com/hitoshi/fkt/internal/repository"
)

// ErrUnknownService はサービス識別子がスコープ対応表に存在しない場合のエラー。
var ErrUnknownService = errors.New("unknown service")

// Provider はOAuthプロバイダーのインターフェース。
type Provider interface {
	// AuthCodeURL は指定スコープの認可URLを生成する。
	AuthCodeURL(state string, scopes []string) string
	// Exchange は認可コードをトークンに交換する。
	Exchange(ctx context.Context, code string) (*TokenGrant, error)
}

// MetricsRecorder はOAuthフローのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordAuthorize(service string)
	RecordCallbackOutcome(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthorize(string)       {}
func (nopRecorder) RecordCallbackOutcome(string) {}

// CallbackParams はプロバイダーからのリダイレクトで受け取るクエリパラメータ。
type CallbackParams struct {
	Code  string
	State string
	Error string
}

// ConnectionStatus はプロフィール画面に表示するサービスごとの接続状態。
type ConnectionStatus struct {
	Service     string
	Connected   bool
	ConnectedAt *time.Time
}

// Service は外部サービス接続に関するビジネスロジックを提供する。
type Service struct {
	provider    Provider
	tokens      repository.OAuthTokenRepository
	connections repository.ServiceConnectionRepository
	metrics     MetricsRecorder
	now         func() time.Time
}

// NewService はServiceを生成する。metricsがnilの場合は記録しない。
func NewService(
	provider Provider,
	tokens repository.OAuthTokenRepository,
	connections repository.ServiceConnectionRepository,
	metrics MetricsRecorder,
) *Service {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Service{
		provider:    provider,
		tokens:      tokens,
		connections: connections,
		metrics:     metrics,
		now:         time.Now,
	}
}

// AuthorizeURL はユーザーとサービスを束縛したstateを含む認可URLを生成する。
// トークン交換や永続化は行わない。
func (s *Service) AuthorizeURL(userID, service string) (string, error) {
	scopes, ok := requestedScopes(service)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	if userID == "" {
		return "", fmt.Errorf("user ID is required")
	}

	state, err := EncodeState(State{UserID: userID, Service: service})
	if err != nil {
		return "", err
	}

	s.metrics.RecordAuthorize(service)
	return s.provider.AuthCodeURL(state, scopes), nil
}

// HandleCallback は認可コードフローのコールバックを処理し、終端状態を返す。
// 各ステップは最初の失敗で終了し、再試行はしない。
// 途中でpanicが発生した場合もinternal_errorとして終端させる。
func (s *Service) HandleCallback(ctx context.Context, params CallbackParams) (outcome Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("oauth callback panic recovered",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			outcome = *errorOutcome(ReasonInternalError)
		}
		s.metrics.RecordCallbackOutcome(outcome.metricLabel())
	}()

	// 1. パラメータの検証
	if term := checkCallbackParams(params); term != nil {
		return *term
	}

	// 2. stateの復号（失敗時はトークン交換に進まない）
	state, term := decodeCallbackState(params.State)
	if term != nil {
		return *term
	}

	// 3. 認可コードをトークンに交換
	grant, term := s.exchangeCode(ctx, params.Code, state)
	if term != nil {
		return *term
	}

	// 4. トークンを保存
	if term := s.storeToken(ctx, state, grant); term != nil {
		return *term
	}

	// 5. 接続状態を更新（失敗しても終端させない）
	s.markConnected(ctx, state)

	slog.Info("external service connected",
		slog.String("user_id", state.UserID),
		slog.String("service", state.Service),
	)
	return successOutcome(state.Service)
}

func checkCallbackParams(params CallbackParams) *Outcome {
	if params.Error != "" {
		slog.Warn("oauth provider returned error", slog.String("error", params.Error))
		return errorOutcome(params.Error)
	}
	if params.Code == "" || params.State == "" {
		return errorOutcome(ReasonMissingParams)
	}
	return nil
}

func decodeCallbackState(raw string) (State, *Outcome) {
	state, err := DecodeState(raw)
	if err != nil {
		slog.Warn("invalid oauth state", slog.String("error", err.Error()))
		return State{}, errorOutcome(ReasonInvalidState)
	}
	if !IsKnownService(state.Service) {
		slog.Warn("oauth state names unknown service", slog.String("service", state.Service))
		return State{}, errorOutcome(ReasonInvalidState)
	}
	return state, nil
}

func (s *Service) exchangeCode(ctx context.Context, code string, state State) (*TokenGrant, *Outcome) {
	grant, err := s.provider.Exchange(ctx, code)
	if err != nil {
		slog.Error("oauth token exchange failed",
			slog.String("user_id", state.UserID),
			slog.String("service", state.Service),
			slog.String("error", err.Error()),
		)
		return nil, errorOutcome(ReasonTokenExchangeFailed)
	}
	if grant == nil || grant.AccessToken == "" {
		slog.Error("oauth token exchange returned no access token",
			slog.String("user_id", state.UserID),
			slog.String("service", state.Service),
		)
		return nil, errorOutcome(ReasonTokenExchangeFailed)
	}
	return grant, nil
}

func (s *Service) storeToken(ctx context.Context, state State, grant *TokenGrant) *Outcome {
	token := &model.OAuthToken{
		UserID:      state.UserID,
		Provider:    state.Service,
		AccessToken: grant.AccessToken,
		Scopes:      grant.Scopes,
	}
	if grant.RefreshToken != "" {
		refresh := grant.RefreshToken
		token.RefreshToken = &refresh
	}
	if grant.ExpiresIn > 0 {
		expiresAt := s.now().Add(grant.ExpiresIn).UTC()
		token.ExpiresAt = &expiresAt
	}
	if token.Scopes == nil {
		token.Scopes = []string{}
	}

	if err := s.tokens.Upsert(ctx, token); err != nil {
		slog.Error("failed to store oauth token",
			slog.String("user_id", state.UserID),
			slog.String("service", state.Service),
			slog.String("error", err.Error()),
		)
		return errorOutcome(ReasonStorageFailed)
	}
	return nil
}

func (s *Service) markConnected(ctx context.Context, state State) {
	connectedAt := s.now().UTC()
	err := s.connections.Upsert(ctx, &model.ServiceConnection{
		UserID:      state.UserID,
		Service:     state.Service,
		Connected:   true,
		ConnectedAt: &connectedAt,
	})
	if err != nil {
		slog.Error("failed to mark service connected",
			slog.String("user_id", state.UserID),
			slog.String("service", state.Service),
			slog.String("error", err.Error()),
		)
	}
}

// Disconnect は外部サービスの接続を解除し、保存済みトークンを削除する。
func (s *Service) Disconnect(ctx context.Context, userID, service string) error {
	if !IsKnownService(service) {
		return model.NewInvalidServiceError(service)
	}

	if err := s.connections.Disconnect(ctx, userID, service); err != nil {
		return fmt.Errorf("failed to disconnect service: %w", err)
	}
	if err := s.tokens.DeleteByUserAndProvider(ctx, userID, service); err != nil {
		return fmt.Errorf("failed to delete oauth token: %w", err)
	}

	slog.Info("external service disconnected",
		slog.String("user_id", userID),
		slog.String("service", service),
	)
	return nil
}

// ListConnections はユーザーの接続状態を返す。
// 対応サービスはすべて含み、未接続のものはConnected=falseとなる。
func (s *Service) ListConnections(ctx context.Context, userID string) ([]ConnectionStatus, error) {
	stored, err := s.connections.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	byService := make(map[string]*model.ServiceConnection, len(stored))
	for _, c := range stored {
		byService[c.Service] = c
	}

	statuses := make([]ConnectionStatus, 0, len(serviceScopes))
	for _, service := range Services() {
		status := ConnectionStatus{Service: service}
		if c, ok := byService[service]; ok {
			status.Connected = c.Connected
			status.ConnectedAt = c.ConnectedAt
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
