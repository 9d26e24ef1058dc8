// Package app はアプリケーションの初期化、依存関係のワイヤリング、サブコマンドの実行を提供する。
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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/blog/internal/auth"
	"github.com/hitoshi/blog/internal/config"
	"github.com/hitoshi/blog/internal/database"
	"github.com/hitoshi/blog/internal/handler"
	"github.com/hitoshi/blog/internal/logger"
	"github.com/hitoshi/blog/internal/metrics"
	"github.com/hitoshi/blog/internal/middleware"
	"github.com/hitoshi/blog/internal/password"
	"github.com/hitoshi/blog/internal/post"
	"github.com/hitoshi/blog/internal/repository"
	"github.com/hitoshi/blog/internal/security"
	"github.com/hitoshi/blog/internal/worker/cleanup"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envファイルと環境変数から設定を読み込む
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定のログレベルで再初期化する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// newSessionRepo は設定に応じたセッションストアを生成する。
// 戻り値のclose関数はストア固有の接続を閉じる。
func newSessionRepo(ctx context.Context, cfg *config.Config, db *sql.DB) (repository.SessionRepository, func() error, error) {
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("session store: redis", slog.String("addr", opts.Addr))
		return repository.NewRedisSessionRepo(client), client.Close, nil
	default:
		slog.Info("session store: postgres")
		return repository.NewPostgresSessionRepo(db), func() error { return nil }, nil
	}
}

// newAuthService はストアとハッシャーを組み立てた認証サービスを生成する。
func newAuthService(cfg *config.Config, db *sql.DB, sessionRepo repository.SessionRepository) *auth.Service {
	return auth.NewService(
		repository.NewPostgresUserRepo(db),
		sessionRepo,
		password.NewHasher(cfg.BcryptCost),
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
}

// newMetricsRegistry はアプリケーションとランタイムのメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, metrics.NewCollector(registry)
}

// newLoginRateLimiter はログイン・登録用のレートリミッターを生成する。
// ログインの429はログイン試行メトリクスにも記録する。
func newLoginRateLimiter(perMinute int, collector metrics.MetricsCollector) *middleware.RateLimiter {
	cfg := middleware.LoginRateLimiterConfig(perMinute)
	cfg.OnLimited = func(r *http.Request) {
		if r.URL.Path == "/api/login" {
			collector.RecordLoginAttempt(metrics.LoginRateLimited)
		}
	}
	return middleware.NewRateLimiter(cfg)
}

// runServe はAPIサーバーを起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	sessionRepo, closeSessions, err := newSessionRepo(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeSessions()
	postRepo := repository.NewPostgresPostRepo(db)

	// 3. ドメインサービスの初期化
	authService := newAuthService(cfg, db, sessionRepo)
	postService := post.NewService(postRepo, security.NewContentSanitizer())

	// 4. 監視
	registry, collector := newMetricsRegistry()
	rateLimiter := newLoginRateLimiter(cfg.RateLimitLogin, collector)
	defer rateLimiter.Stop()

	// 5. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     authService,
		CookieSigner:      auth.NewCookieSigner(middleware.SessionCookieName, cfg.SessionSecret, authService.SessionMaxAge()),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		HealthChecker: db,
		Metrics:       collector,
		Gatherer:      registry,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: authService.SessionMaxAge(),
		},

		PostService: postService,
		FeedConfig:  handler.FeedHandlerConfig{BaseURL: cfg.BaseURL},

		StaticDir: cfg.StaticDir,
	})

	// 6. 期限切れセッションの定期削除（serve終了とともに停止）
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go cleanup.NewCleanupJob(sessionRepo, slog.Default()).Start(sweepCtx)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("base_url", cfg.BaseURL),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runCleanupSessions は期限切れセッションを1回だけ削除する。
func runCleanupSessions(ctx context.Context, cfg *config.Config, out io.Writer) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sessionRepo, closeSessions, err := newSessionRepo(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeSessions()

	deleted, err := cleanup.NewCleanupJob(sessionRepo, slog.Default()).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted %d expired sessions\n", deleted)
	return nil
}

// runCreateAdmin は管理者ユーザーを作成する。
// 既に同名のユーザーが存在する場合は既存ユーザーを変更せずエラーを返す。
func runCreateAdmin(ctx context.Context, cfg *config.Config, username, plaintext string, out io.Writer) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 管理者作成ではセッションを発行しないため、常にPostgresのストアで足りる
	authService := newAuthService(cfg, db, repository.NewPostgresSessionRepo(db))
	user, err := authService.EnsureAdmin(ctx, username, plaintext)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	fmt.Fprintf(out, "created admin %q (id=%d)\n", user.Username, user.ID)
	return nil
}

// runHashPassword は平文パスワードのbcryptハッシュを出力する。
// 手作業でusersテーブルに管理者を登録する場合に使う。
func runHashPassword(plaintext string, cost int, out io.Writer) error {
	digest, err := password.NewHasher(cost).Hash(plaintext)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	fmt.Fprintln(out, digest)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, healthURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
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
// URLとして解釈できない場合は全体を伏せる。
func maskDatabaseURL(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
