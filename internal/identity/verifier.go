// Package identity はIDプラットフォームが発行したベアラー資格情報を検証し、
// リクエストのユーザーIDを解決する。
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized は資格情報が欠落、または検証に失敗した場合のエラー。
var ErrUnauthorized = errors.New("unauthorized")

// Verifier はベアラー資格情報からユーザーIDを解決するインターフェース。
type Verifier interface {
	Verify(token string) (userID string, err error)
}

// JWTConfig はHS256署名トークンの検証設定。
type JWTConfig struct {
	Secret   []byte
	Audience string // 空の場合はaudを検査しない
	Now      func() time.Time
}

// JWTVerifier はHS256で署名されたJWTを検証する。
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier はJWTVerifierを生成する。
func NewJWTVerifier(cfg JWTConfig) (*JWTVerifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(cfg.Now))
	}

	return &JWTVerifier{
		secret: cfg.Secret,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify はトークンを検証し、subクレームをユーザーIDとして返す。
// 失敗理由にかかわらずErrUnauthorizedでラップして返す。
func (v *JWTVerifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	var claims jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: missing sub claim", ErrUnauthorized)
	}
	return claims.Subject, nil
}

// BearerToken はAuthorizationヘッダーからベアラートークンを取り出す。
// スキーム名は大文字小文字を区別しない。
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// compile-time interface check
var _ Verifier = (*JWTVerifier)(nil)
