// Package oauth は外部サービス（Gmail、Google Drive、Google Calendar）を
// ユーザーアカウントに接続するためのOAuth 2.0認可コードフローを提供する。
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrTokenExchange は認可コードのトークン交換に失敗した場合のエラー。
var ErrTokenExchange = errors.New("oauth token exchange failed")

// GoogleConfig はGoogle OAuthプロバイダーの設定。
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // コールバックエンドポイントのURL

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string

	// トークン交換に使うHTTPクライアント。nilの場合はタイムアウト10秒のクライアント。
	HTTPClient *http.Client
}

// TokenGrant はトークンエンドポイントから受け取ったトークン情報。
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration // 0の場合はプロバイダーが有効期限を返さなかった
	Scopes       []string
}

// GoogleProvider はGoogle OAuth 2.0の認可URL生成とトークン交換を提供する。
type GoogleProvider struct {
	config     oauth2.Config
	httpClient *http.Client
}

// NewGoogleProvider はGoogleProviderを生成する。
func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	// クライアント認証情報はフォームボディで送る
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &GoogleProvider{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
		},
		httpClient: httpClient,
	}
}

// AuthCodeURL は指定スコープの認可URLを生成する。
// リフレッシュトークンを毎回発行させるため access_type=offline と prompt=consent を付与する。
func (p *GoogleProvider) AuthCodeURL(state string, scopes []string) string {
	cfg := p.config
	cfg.Scopes = scopes
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange は認可コードをトークンに交換する。
// 非2xx応答やaccess_tokenを欠く応答はErrTokenExchangeでラップして返す。
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*TokenGrant, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, fmt.Errorf("%w: status %d: %s", ErrTokenExchange, retrieveErr.Response.StatusCode, string(retrieveErr.Body))
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token in response", ErrTokenExchange)
	}

	grant := &TokenGrant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scopes:       []string{},
	}
	if tok.ExpiresIn > 0 {
		grant.ExpiresIn = time.Duration(tok.ExpiresIn) * time.Second
	} else if !tok.Expiry.IsZero() {
		grant.ExpiresIn = time.Until(tok.Expiry)
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		grant.Scopes = strings.Fields(scope)
	}

	return grant, nil
}

// compile-time interface check
var _ Provider = (*GoogleProvider)(nil)
