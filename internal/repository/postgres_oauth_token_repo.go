package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/fkt/internal/model"
	"github.com/lib/pq"
)

// PostgresOAuthTokenRepo はPostgreSQLを使用したOAuthトークンリポジトリ。
type PostgresOAuthTokenRepo struct {
	db *sql.DB
}

// NewPostgresOAuthTokenRepo はPostgresOAuthTokenRepoを生成する。
func NewPostgresOAuthTokenRepo(db *sql.DB) *PostgresOAuthTokenRepo {
	return &PostgresOAuthTokenRepo{db: db}
}

// Upsert はトークンを冪等にUPSERTする。
// UNIQUE(user_id, provider)制約を利用したINSERT ON CONFLICTで実装し、
// 同時実行時は後勝ちとなる。
func (r *PostgresOAuthTokenRepo) Upsert(ctx context.Context, token *model.OAuthToken) error {
	now := time.Now().UTC()
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	scopes := token.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO oauth_tokens (id, user_id, provider, access_token, refresh_token, expires_at, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 ON CONFLICT (user_id, provider) DO UPDATE SET
		     access_token = EXCLUDED.access_token,
		     refresh_token = EXCLUDED.refresh_token,
		     expires_at = EXCLUDED.expires_at,
		     scopes = EXCLUDED.scopes,
		     updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at, updated_at`,
		token.ID, token.UserID, token.Provider, token.AccessToken,
		token.RefreshToken, token.ExpiresAt, pq.Array(scopes), now,
	).Scan(&token.ID, &token.CreatedAt, &token.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert oauth token: %w", err)
	}

	token.Scopes = scopes
	return nil
}

// FindByUserAndProvider はユーザーIDとプロバイダーでトークンを取得する。
// 見つからない場合はnilを返す。
func (r *PostgresOAuthTokenRepo) FindByUserAndProvider(ctx context.Context, userID, provider string) (*model.OAuthToken, error) {
	token := &model.OAuthToken{}
	var refreshToken sql.NullString
	var expiresAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, provider, access_token, refresh_token, expires_at, scopes, created_at, updated_at
		 FROM oauth_tokens
		 WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	).Scan(
		&token.ID, &token.UserID, &token.Provider, &token.AccessToken,
		&refreshToken, &expiresAt, pq.Array(&token.Scopes),
		&token.CreatedAt, &token.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find oauth token: %w", err)
	}

	token.RefreshToken = nullStringPtr(refreshToken)
	token.ExpiresAt = nullTimePtr(expiresAt)
	return token, nil
}

// DeleteByUserAndProvider はユーザーIDとプロバイダーのトークンを削除する。
func (r *PostgresOAuthTokenRepo) DeleteByUserAndProvider(ctx context.Context, userID, provider string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM oauth_tokens WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	)
	if err != nil {
		return fmt.Errorf("failed to delete oauth token: %w", err)
	}
	return nil
}

// compile-time interface check
var _ OAuthTokenRepository = (*PostgresOAuthTokenRepo)(nil)
