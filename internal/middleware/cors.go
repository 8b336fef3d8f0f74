package middleware

import (
	"net/http"
	"strings"
)

// DefaultAllowedHeaders はブラウザクライアントが送信するリクエストヘッダー。
var DefaultAllowedHeaders = []string{
	"authorization", "x-client-info", "apikey", "content-type",
}

// CORSConfig はCORSミドルウェアの設定。
type CORSConfig struct {
	AllowedOrigin  string   // "*" の場合はcredentialsを許可しない
	AllowedHeaders []string // 空の場合はDefaultAllowedHeaders
}

// NewCORSMiddleware は指定されたオリジンに対するCORSミドルウェアを返す。
// OPTIONSプリフライトリクエストには204で応答し、後続のハンドラーは呼ばない。
func NewCORSMiddleware(cfg CORSConfig) func(next http.Handler) http.Handler {
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = DefaultAllowedHeaders
	}
	allowHeaders := strings.Join(headers, ", ")
	wildcard := cfg.AllowedOrigin == "*"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", cfg.AllowedOrigin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Max-Age", "86400")
			if !wildcard {
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
