package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// OAuth（外部サービス接続）
	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID,required,notEmpty"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET,required,notEmpty"`
	OAuthRedirectURL   string        `env:"OAUTH_REDIRECT_URL,required,notEmpty"`
	GoogleAuthURL      string        `env:"GOOGLE_AUTH_URL"`
	GoogleTokenURL     string        `env:"GOOGLE_TOKEN_URL"`
	OAuthTimeout       time.Duration `env:"OAUTH_TIMEOUT" envDefault:"10s"`

	// Identity（ベアラー資格情報の検証）
	AuthJWTSecret   string `env:"AUTH_JWT_SECRET,required,notEmpty"`
	AuthJWTAudience string `env:"AUTH_JWT_AUDIENCE"`

	// Rate Limit（req/min）
	RateLimitGeneral  int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitCallback int `env:"RATE_LIMIT_CALLBACK" envDefault:"30"`

	// Worker
	TokenCleanupInterval time.Duration `env:"TOKEN_CLEANUP_INTERVAL" envDefault:"24h"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	AppURL     string `env:"APP_URL" envDefault:"https://fact-knowledge-tool.lovable.app"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"*"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.RateLimitGeneral <= 0 {
		return fmt.Errorf("RATE_LIMIT_GENERAL must be positive, got %d", c.RateLimitGeneral)
	}
	if c.RateLimitCallback <= 0 {
		return fmt.Errorf("RATE_LIMIT_CALLBACK must be positive, got %d", c.RateLimitCallback)
	}
	if c.OAuthTimeout <= 0 {
		return fmt.Errorf("OAUTH_TIMEOUT must be positive, got %s", c.OAuthTimeout)
	}
	if c.TokenCleanupInterval <= 0 {
		return fmt.Errorf("TOKEN_CLEANUP_INTERVAL must be positive, got %s", c.TokenCleanupInterval)
	}
	return nil
}
