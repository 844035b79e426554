// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/hitoshi/storefront/internal/client"
)

const (
	// ClientCookieName はブラウザクライアントを識別するCookieの名前。
	ClientCookieName = "client_id"

	// AccessTokenCookieName はアクセストークンを保持するCookieの名前。
	AccessTokenCookieName = "sf_access_token"

	// clientCookieMaxAge はクライアントID Cookieの有効期間（秒）。1年。
	clientCookieMaxAge = 365 * 24 * 60 * 60
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	clientContextKey   = contextKey("client")
	clientIDContextKey = contextKey("client_id")
)

// InstanceProvider はクライアントIDに対応するInstanceを返す。client.Registryが実装する。
type InstanceProvider interface {
	Get(id string) (*client.Instance, bool)
	GetOrCreate(id, accessToken string) *client.Instance
}

// CreationLimiter はクライアントインスタンスの新規生成を制限する。
// 拒否する場合はレスポンスを書き込んでfalseを返す。RateLimiterが実装する。
type CreationLimiter interface {
	AllowNewClient(w http.ResponseWriter, r *http.Request) bool
}

// ClientOption はクライアントミドルウェアのオプション。
type ClientOption func(*clientOptions)

type clientOptions struct {
	limiter CreationLimiter
}

// WithCreationLimiter はInstanceを新規生成するリクエストに制限をかける。
func WithCreationLimiter(l CreationLimiter) ClientOption {
	return func(o *clientOptions) { o.limiter = l }
}

// CookieConfig はミドルウェアが発行するCookieの設定。
type CookieConfig struct {
	Secure bool
	Domain string
}

// NewClientMiddleware はクライアントID Cookieからクライアントインスタンスを解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
// Cookieがない、または不正な場合は新しいクライアントIDを発行する。
// 新しいインスタンスにはアクセストークンCookieの値を復元対象として渡す。
func NewClientMiddleware(provider InstanceProvider, config CookieConfig, opts ...ClientOption) func(next http.Handler) http.Handler {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ""
			if c, err := r.Cookie(ClientCookieName); err == nil {
				if _, err := uuid.Parse(c.Value); err == nil {
					clientID = c.Value
				}
			}

			// 未知のIDもInstance生成になるため、Cookieなしと同じく制限する
			if o.limiter != nil {
				known := false
				if clientID != "" {
					_, known = provider.Get(clientID)
				}
				if !known && !o.limiter.AllowNewClient(w, r) {
					return
				}
			}

			if clientID == "" {
				clientID = uuid.New().String()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookieName,
					Value:    clientID,
					Path:     "/",
					Domain:   config.Domain,
					MaxAge:   clientCookieMaxAge,
					HttpOnly: true,
					Secure:   config.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			accessToken := ""
			if c, err := r.Cookie(AccessTokenCookieName); err == nil {
				accessToken = c.Value
			}

			annotateClientID(r.Context(), clientID)
			inst := provider.GetOrCreate(clientID, accessToken)
			ctx := ContextWithClient(r.Context(), inst)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientFromContext はリクエストコンテキストからクライアントインスタンスを取得する。
// クライアントミドルウェアを通過したリクエストでのみ有効。
func ClientFromContext(ctx context.Context) (*client.Instance, bool) {
	inst, ok := ctx.Value(clientContextKey).(*client.Instance)
	return inst, ok && inst != nil
}

// ClientIDFromContext はリクエストコンテキストからクライアントIDを取得する。
func ClientIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(clientIDContextKey).(string)
	return id, ok && id != ""
}

// ContextWithClient はコンテキストにクライアントインスタンスを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClient(ctx context.Context, inst *client.Instance) context.Context {
	ctx = context.WithValue(ctx, clientContextKey, inst)
	if inst != nil {
		ctx = context.WithValue(ctx, clientIDContextKey, inst.ID)
	}
	return ctx
}

// SetAccessTokenCookie はアクセストークンCookieを設定する。
func SetAccessTokenCookie(w http.ResponseWriter, config CookieConfig, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearAccessTokenCookie はアクセストークンCookieを削除する。
func ClearAccessTokenCookie(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
