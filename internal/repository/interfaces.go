// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/fkt/internal/model"
)

// OAuthTokenRepository は外部サービスのOAuthトークンの永続化インターフェース。
type OAuthTokenRepository interface {
	// Upsert はトークンを(user_id, provider)単位で冪等にUPSERTする。
	// 同一の組に対する後続の書き込みが既存の値を置き換える。
	Upsert(ctx context.Context, token *model.OAuthToken) error

	// FindByUserAndProvider はユーザーIDとプロバイダーでトークンを取得する。
	// 見つからない場合はnilを返す。
	FindByUserAndProvider(ctx context.Context, userID, provider string) (*model.OAuthToken, error)

	// DeleteByUserAndProvider はユーザーIDとプロバイダーのトークンを削除する。
	// 対象が存在しない場合もエラーにしない。
	DeleteByUserAndProvider(ctx context.Context, userID, provider string) error
}

// ServiceConnectionRepository は外部サービス接続状態の永続化インターフェース。
type ServiceConnectionRepository interface {
	// Upsert は接続状態を(user_id, service)単位で冪等にUPSERTする。
	Upsert(ctx context.Context, conn *model.ServiceConnection) error

	// Disconnect は接続状態をconnected=false、connected_at=NULLに更新する。
	Disconnect(ctx context.Context, userID, service string) error

	// ListByUserID はユーザーの接続状態一覧をサービス名順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.ServiceConnection, error)
}

// FactoRepository は事実データの永続化インターフェース。
type FactoRepository interface {
	// FindByID は指定IDの事実を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Facto, error)

	// ListByProcesso はユーザーの案件に属する事実を
	// data_facto昇順（NULLは末尾）で返す。
	ListByProcesso(ctx context.Context, userID, processoID string) ([]*model.Facto, error)

	// Create は事実を作成する。
	Create(ctx context.Context, facto *model.Facto) error

	// Update は事実の記述項目を上書き更新する。
	Update(ctx context.Context, facto *model.Facto) error

	// Delete は指定IDの事実を削除する。
	Delete(ctx context.Context, id string) error
}

// nullTimePtr はsql.NullTimeを*time.Timeに変換する。
func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// nullStringPtr はsql.NullStringを*stringに変換する。
func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
