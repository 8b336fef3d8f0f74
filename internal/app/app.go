package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/fkt/internal/config"
	"github.com/hitoshi/fkt/internal/database"
	"github.com/hitoshi/fkt/internal/facto"
	"github.com/hitoshi/fkt/internal/handler"
	"github.com/hitoshi/fkt/internal/identity"
	"github.com/hitoshi/fkt/internal/logger"
	"github.com/hitoshi/fkt/internal/metrics"
	"github.com/hitoshi/fkt/internal/middleware"
	"github.com/hitoshi/fkt/internal/oauth"
	"github.com/hitoshi/fkt/internal/repository"
	"github.com/hitoshi/fkt/internal/security"
	"github.com/hitoshi/fkt/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, nil)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetupDefault(w, level)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheckとcheckは軽量サブコマンドのため、フル初期化をスキップする
	switch cmd {
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandCheck:
		return runCheck(os.Stdin, w, args[1:])
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("app_url", cfg.AppURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// buildRouter は設定と接続済みDBから全依存関係をワイヤリングしてルーターを構築する。
// 返却するcleanup関数はレートリミッターのバックグラウンド処理を停止する。
func buildRouter(cfg *config.Config, db *sql.DB, health handler.HealthChecker) (http.Handler, func(), error) {
	// 1. リポジトリ
	tokenRepo := repository.NewPostgresOAuthTokenRepo(db)
	connRepo := repository.NewPostgresUserServiceRepo(db)
	factoRepo := repository.NewPostgresFactoRepo(db)

	// 2. メトリクス
	reg, collector := newMetricsRegistry()

	// 3. ドメインサービス
	tokenClient, guarded := security.TokenExchangeClient(cfg.GoogleTokenURL, cfg.OAuthTimeout)
	if !guarded {
		slog.Warn("token endpoint is not public; egress guard disabled",
			slog.String("token_url", cfg.GoogleTokenURL),
		)
	}
	provider := oauth.NewGoogleProvider(oauth.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL,
		AuthURL:      cfg.GoogleAuthURL,
		TokenURL:     cfg.GoogleTokenURL,
		HTTPClient:   tokenClient,
	})
	oauthService := oauth.NewService(provider, tokenRepo, connRepo, collector)
	factoService := facto.NewService(factoRepo, nil, collector)

	verifier, err := identity.NewJWTVerifier(identity.JWTConfig{
		Secret:   []byte(cfg.AuthJWTSecret),
		Audience: cfg.AuthJWTAudience,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create verifier: %w", err)
	}

	// 4. レートリミッター（設定値はreq/min）
	apiLimiter := middleware.NewRateLimiter(middleware.PerMinute(cfg.RateLimitGeneral))
	callbackLimiter := middleware.NewRateLimiter(middleware.PerMinute(cfg.RateLimitCallback))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:              slog.Default(),
		Verifier:            verifier,
		CORS:                middleware.CORSConfig{AllowedOrigin: cfg.CORSAllowedOrigin},
		APIRateLimiter:      apiLimiter,
		CallbackRateLimiter: callbackLimiter,
		HealthChecker:       health,
		MetricsGatherer:     reg,
		OAuthService:        oauthService,
		ConnectionService:   oauthService,
		AppURL:              cfg.AppURL,
		FactoService:        factoService,
	})

	stop := func() {
		apiLimiter.Stop()
		callbackLimiter.Stop()
	}
	return router, stop, nil
}

// newMetricsRegistry はランタイムメトリクスとアプリケーションメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// serveUntilDone はserverを起動し、ctxのキャンセルでグレースフルシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM受信）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := database.OpenWithPool(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	router, stopLimiters, err := buildRouter(cfg, db, db)
	if err != nil {
		return err
	}
	defer stopLimiters()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second + cfg.OAuthTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilDone(ctx, server, "API server")
}

// runWorker はワーカーモードで起動する。
// 起動直後と以降TOKEN_CLEANUP_INTERVALごとに期限切れトークンのクリーンアップを実行する。
// SERVER_PORTでは/healthと/metricsのみ公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	reg, collector := newMetricsRegistry()
	job := cleanup.NewCleanupJob(db, slog.Default(), collector)

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.TokenCleanupInterval),
	)

	jobCtx, cancelJob := context.WithCancel(ctx)
	jobDone := make(chan struct{})
	go func() {
		defer close(jobDone)
		// 起動直後に1回実行（失敗はログ済み）
		_ = job.Run(jobCtx)
		job.RunEvery(jobCtx, cfg.TokenCleanupInterval)
	}()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewOpsRouter(slog.Default(), db, reg),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	err = serveUntilDone(ctx, server, "worker ops server")
	cancelJob()
	<-jobDone
	return err
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.Version(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(healthURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(healthURL)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
