package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/blog/internal/metrics"
	"github.com/hitoshi/blog/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	CookieSigner      CookieSigner
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 監視
	HealthChecker HealthChecker
	Metrics       metrics.MetricsCollector
	Gatherer      prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 記事
	PostService PostServiceInterface
	FeedConfig  FeedHandlerConfig

	// 静的ファイルのルートディレクトリ。空の場合は配信しない。
	StaticDir string
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging(RequestID) → Metrics → SecurityHeaders → CORS → Session
//
// 記事の作成・更新・削除はRequireAdminで保護し、リクエストボディの検証より先に権限を確認する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(metrics.NewHTTPMiddleware(deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.CORSAllowedOrigin != "" {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	}
	r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.CookieSigner))

	authHandler := NewAuthHandler(deps.AuthService, deps.CookieSigner, deps.Metrics, deps.AuthConfig)
	postHandler := NewPostHandler(deps.PostService, deps.Metrics)
	feedHandler := NewFeedHandler(deps.PostService, deps.FeedConfig)

	// --- 監視 ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.SetupMetricsRoute(deps.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		// --- 認証 ---
		// ログインと登録はIP単位のレート制限を適用する
		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.Middleware)
			}
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})
		r.Post("/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		// --- 記事 ---
		r.Route("/posts", func(r chi.Router) {
			r.Get("/", postHandler.List)
			r.Get("/{id}", postHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Post("/", postHandler.Create)
				r.Put("/{id}", postHandler.Update)
				r.Delete("/{id}", postHandler.Delete)
			})
		})
	})

	r.Get("/feed.xml", feedHandler.Feed)

	// --- 静的ファイル（フロントエンド） ---
	if deps.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(deps.StaticDir)))
	}

	return r
}
