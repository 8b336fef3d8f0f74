package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/fkt/internal/identity"
	"github.com/hitoshi/fkt/internal/metrics"
	"github.com/hitoshi/fkt/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// HealthChecker はヘルスチェックで疎通を確認する依存先。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger   *slog.Logger
	Verifier identity.Verifier
	CORS     middleware.CORSConfig
	// APIRateLimiter は/api/*にユーザー単位で適用する。
	APIRateLimiter *middleware.RateLimiter
	// CallbackRateLimiter はnilでなければ/oauth/callbackに接続元IP単位で適用する。
	CallbackRateLimiter *middleware.RateLimiter

	HealthChecker HealthChecker
	// MetricsGatherer がnilの場合は/metricsを公開しない。
	MetricsGatherer prometheus.Gatherer

	// OAuth
	OAuthService      OAuthServiceInterface
	ConnectionService ConnectionServiceInterface
	AppURL            string

	// 事実
	FactoService FactoServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS
//	  /api/*: BearerAuth → RateLimit(ユーザー単位)
//
// /oauth/*は独自の応答形式を持つため、認証ミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORS))

	oauthHandler := NewOAuthHandler(deps.OAuthService, deps.Verifier, deps.AppURL)
	serviceHandler := NewServiceHandler(deps.ConnectionService)
	factoHandler := NewFactoHandler(deps.FactoService)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// OAuthフロー（authorizeは自前で資格情報を検証する）
	r.Route("/oauth", func(r chi.Router) {
		r.Post("/authorize", oauthHandler.Authorize)
		if deps.CallbackRateLimiter != nil {
			r.With(deps.CallbackRateLimiter.Middleware(middleware.ByRemoteIP, "callback")).
				Get("/callback", oauthHandler.Callback)
		} else {
			r.Get("/callback", oauthHandler.Callback)
		}
	})

	// --- 認証が必要なルート ---
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.Verifier))
		if deps.APIRateLimiter != nil {
			r.Use(deps.APIRateLimiter.Middleware(middleware.ByUserID, "api"))
		}

		// 外部サービス接続
		r.Route("/services", func(r chi.Router) {
			r.Get("/", serviceHandler.ListConnections)
			r.Delete("/{service}", serviceHandler.Disconnect)
		})

		// 事実
		r.Post("/factos/validate", factoHandler.Validate)
		r.Route("/processos/{id}/factos", func(r chi.Router) {
			r.Get("/", factoHandler.ListFactos)
			r.Post("/", factoHandler.CreateFacto)
		})
		r.Route("/factos/{id}", func(r chi.Router) {
			r.Put("/", factoHandler.UpdateFacto)
			r.Delete("/", factoHandler.DeleteFacto)
		})
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// NewOpsRouter はAPIを持たないプロセス（worker）向けに/healthと/metricsだけを公開するルーターを返す。
func NewOpsRouter(logger *slog.Logger, checker HealthChecker, gatherer prometheus.Gatherer) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())

	r.Get("/health", healthHandler(checker))
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	}
	return r
}
