// Package guard はルート遷移前のアクセス制御を提供する。
package guard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/route"
)

// DefaultAdminLoginPath は管理者ログイン画面のパス。
const DefaultAdminLoginPath = "/admin/login"

// 判定理由
const (
	ReasonPublic        = "public"
	ReasonAuthenticated = "authenticated"
	ReasonAdmin         = "admin"
	ReasonNoSession     = "no_session"
	ReasonNotAdmin      = "not_admin"
)

// SessionState はガードが参照するセッション状態。session.Storeが実装する。
type SessionState interface {
	// EnsureInitialized は未初期化なら初期化し、実行中なら完了を待つ。初期化済みなら何もしない。
	EnsureInitialized(ctx context.Context) error
	User() *model.AuthUser
	IsAdmin() bool
}

// Decision はガードの判定結果。
type Decision struct {
	Allow      bool
	RedirectTo string
	Reason     string
}

// Option はGuardの設定を変更する。
type Option func(*Guard)

// WithAuthRedirect は認証が必要なルートで未ログインの場合のリダイレクト先を設定する。
func WithAuthRedirect(path string) Option {
	return func(g *Guard) {
		if path != "" {
			g.authRedirect = path
		}
	}
}

// WithAdminRedirect は管理者権限がない場合のリダイレクト先を設定する。
func WithAdminRedirect(path string) Option {
	return func(g *Guard) {
		if path != "" {
			g.adminRedirect = path
		}
	}
}

// WithMetrics は判定結果を記録するメトリクスを設定する。
func WithMetrics(mc metrics.MetricsCollector) Option {
	return func(g *Guard) {
		if mc != nil {
			g.metrics = mc
		}
	}
}

// Guard はナビゲーションガード。
type Guard struct {
	authRedirect  string
	adminRedirect string
	metrics       metrics.MetricsCollector
}

// New はGuardを生成する。リダイレクト先の既定値はどちらも管理者ログイン画面。
func New(opts ...Option) *Guard {
	g := &Guard{
		authRedirect:  DefaultAdminLoginPath,
		adminRedirect: DefaultAdminLoginPath,
		metrics:       metrics.Nop{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check はマッチしたルート連鎖とセッション状態から遷移の可否を判定する。
// セッション状態が初期化中の場合は初期化の完了を待ってから判定する。
func (g *Guard) Check(ctx context.Context, state SessionState, chain []route.Record) Decision {
	req := route.Requirements(chain)

	if err := state.EnsureInitialized(ctx); err != nil {
		slog.Warn("session initialization did not complete", slog.String("error", err.Error()))
	}

	d := g.decide(req, state)
	outcome := "allow"
	if !d.Allow {
		outcome = "redirect"
	}
	g.metrics.RecordGuardDecision(outcome, d.Reason)
	return d
}

func (g *Guard) decide(req route.Meta, state SessionState) Decision {
	if req.RequiresAuth && state.User() == nil {
		return Decision{RedirectTo: g.authRedirect, Reason: ReasonNoSession}
	}
	if req.RequiresAdmin && !state.IsAdmin() {
		return Decision{RedirectTo: g.adminRedirect, Reason: ReasonNotAdmin}
	}

	switch {
	case req.RequiresAdmin:
		return Decision{Allow: true, Reason: ReasonAdmin}
	case req.RequiresAuth:
		return Decision{Allow: true, Reason: ReasonAuthenticated}
	default:
		return Decision{Allow: true, Reason: ReasonPublic}
	}
}

// Middleware はルートテーブルにマッチするGETリクエストにガードを適用するchiミドルウェアを返す。
// stateFromはリクエストに対応するクライアントインスタンスのセッション状態を返す。
// 拒否された場合は302でリダイレクトする。
func (g *Guard) Middleware(table *route.Table, stateFrom func(*http.Request) SessionState) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			chain, ok := table.Match(r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			var state SessionState = anonymous{}
			if s := stateFrom(r); s != nil {
				state = s
			}

			d := g.Check(r.Context(), state, chain)
			slog.Debug("navigation guard decision",
				slog.String("path", r.URL.Path),
				slog.Bool("allow", d.Allow),
				slog.String("reason", d.Reason),
			)
			if !d.Allow {
				http.Redirect(w, r, d.RedirectTo, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// anonymous はクライアントインスタンスを持たないリクエストのセッション状態。
type anonymous struct{}

func (anonymous) EnsureInitialized(context.Context) error { return nil }
func (anonymous) User() *model.AuthUser                   { return nil }
func (anonymous) IsAdmin() bool                           { return false }
