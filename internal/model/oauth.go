package model

import "time"

// OAuthToken は外部サービスのOAuthトークンを表す。
// (UserID, Provider)の組につき1レコードのみ存在する。
type OAuthToken struct {
	ID           string
	UserID       string
	Provider     string // サービス識別子（gmail, google_drive, google_calendar）
	AccessToken  string
	RefreshToken *string
	ExpiresAt    *time.Time
	Scopes       []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ServiceConnection はユーザーごとの外部サービス接続状態を表す。
// (UserID, Service)の組につき1レコードのみ存在する。
type ServiceConnection struct {
	ID          string
	UserID      string
	Service     string
	Connected   bool
	ConnectedAt *time.Time
}
