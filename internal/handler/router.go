package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/storefront/internal/guard"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/route"
)

// oauthCallbackPath はCSRFトークン検証の対象外とするOAuthコールバックのパス。
const oauthCallbackPath = "/auth/google/callback"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Clients           middleware.InstanceProvider
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ヘルスチェック・メトリクス
	HealthChecker HealthChecker
	Metrics       metrics.MetricsCollector
	Gatherer      prometheus.Gatherer

	// ナビゲーション
	Routes *route.Table
	Guard  *guard.Guard

	// 認証
	AuthConfig AuthHandlerConfig

	// カタログ・カート
	Catalog  CatalogReader
	Products ProductFinder
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → StripSlashes → SecurityHeaders → Logging → CORS → Client → CSRF → RateLimit(General)
//
// /health と /metrics はクライアントミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	routes := deps.Routes
	if routes == nil {
		routes = route.DefaultTable()
	}
	g := deps.Guard
	if g == nil {
		g = guard.New(guard.WithMetrics(mc))
	}
	cookieCfg := deps.AuthConfig.cookieConfig()
	csrfCfg := middleware.CSRFConfig{
		CookieSecure: deps.AuthConfig.CookieSecure,
		CookieDomain: deps.AuthConfig.CookieDomain,
		ExemptPaths:  []string{oauthCallbackPath},
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger, mc))
	r.Use(chimw.StripSlashes)
	r.Use(middleware.NewSecurityHeadersMiddleware(middleware.SecurityHeadersConfig{
		HSTS: deps.AuthConfig.CookieSecure,
	}))
	r.Use(middleware.NewLoggingMiddleware(logger, mc))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// --- クライアントインスタンス不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	authHandler := NewAuthHandler(deps.AuthConfig, mc)
	productHandler := NewProductHandler(deps.Catalog)
	cartHandler := NewCartHandler(deps.Catalog, deps.Products, mc)

	// --- クライアントインスタンスに紐付くルート ---
	// ミドルウェアスタック: Client → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewClientMiddleware(deps.Clients, cookieCfg, middleware.WithCreationLimiter(deps.RateLimiter)))
		r.Use(middleware.NewCSRFMiddleware(csrfCfg))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(csrfCfg))

		// ページ（ナビゲーションガード適用）
		r.Group(func(r chi.Router) {
			r.Use(g.Middleware(routes, sessionState))
			for _, leaf := range routes.Flatten() {
				r.Get(leaf.FullPath, NewPageHandler(leaf))
			}
		})

		// 認証
		r.Route("/auth", func(r chi.Router) {
			// サインイン・アカウント作成は専用のレート制限を追加
			r.With(deps.RateLimiter.SignInMiddleware()).Post("/login", authHandler.SignIn)
			r.With(deps.RateLimiter.SignInMiddleware()).Post("/signup", authHandler.SignUp)
			r.Get("/google/login", authHandler.GoogleLogin)
			r.Get("/google/callback", authHandler.GoogleCallback)
			r.Post("/logout", authHandler.SignOut)
			r.Get("/me", authHandler.Me)
		})

		// 商品
		r.Get("/api/products", productHandler.ListProducts)

		// カート
		r.Route("/api/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Patch("/items/{id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{id}", cartHandler.RemoveItem)
		})
	})

	return r
}

// sessionState はリクエストに対応するクライアントインスタンスのセッション状態を返す。
func sessionState(r *http.Request) guard.SessionState {
	inst, ok := middleware.ClientFromContext(r.Context())
	if !ok || inst.Session == nil {
		return nil
	}
	return inst.Session
}
