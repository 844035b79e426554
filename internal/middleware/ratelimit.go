package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/storefront/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	SignInRate      rate.Limit    // サインイン・アカウント作成のレート（req/sec）
	SignInBurst     int           // サインイン・アカウント作成のバーストサイズ
	NewClientRate   rate.Limit    // 接続元アドレスごとのクライアント生成レート（req/sec）
	NewClientBurst  int           // クライアント生成のバーストサイズ。0以下は無制限
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/client、サインイン 10 req/min/address、
// クライアント生成 30 req/min/address。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		SignInRate:      rate.Limit(10.0 / 60.0),
		SignInBurst:     10,
		NewClientRate:   rate.Limit(30.0 / 60.0),
		NewClientBurst:  30,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyedLimiter はクライアントごとのレートリミッターとアクセス時刻を保持する。
type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は同じレート設定を共有するリミッターの集合。
type limiterSet struct {
	name  string
	limit rate.Limit
	burst int
	key   func(r *http.Request) string

	mu       sync.Mutex
	limiters map[string]*keyedLimiter
}

func newLimiterSet(name string, limit rate.Limit, burst int, key func(r *http.Request) string) *limiterSet {
	return &limiterSet{name: name, limit: limit, burst: burst, key: key, limiters: make(map[string]*keyedLimiter)}
}

// allow はリクエストのキーに対応するリミッターでトークンを1つ消費する。
func (s *limiterSet) allow(r *http.Request, now time.Time) (string, bool) {
	key := s.key(r)
	return key, s.get(key, now).Allow()
}

func (s *limiterSet) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kl, ok := s.limiters[key]; ok {
		kl.lastAccess = now
		return kl.limiter
	}
	limiter := rate.NewLimiter(s.limit, s.burst)
	s.limiters[key] = &keyedLimiter{limiter: limiter, lastAccess: now}
	return limiter
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, kl := range s.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// RateLimiter はクライアントごとのレート制限を管理する。
// API全般、サインイン系エンドポイント、クライアント生成の3種類を提供する。
// サインインとクライアント生成はCookieで偽装できないよう接続元アドレスで制限する。
type RateLimiter struct {
	config    RateLimiterConfig
	general   *limiterSet
	signIn    *limiterSet
	newClient *limiterSet
	stopCh    chan struct{}
	once      sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:    config,
		general:   newLimiterSet("general", config.GeneralRate, config.GeneralBurst, limiterKey),
		signIn:    newLimiterSet("sign_in", config.SignInRate, config.SignInBurst, remoteAddrKey),
		newClient: newLimiterSet("new_client", config.NewClientRate, config.NewClientBurst, remoteAddrKey),
		stopCh:    make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// クライアントIDがコンテキストにない場合は接続元アドレスで制限する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general)
}

// SignInMiddleware はサインイン・アカウント作成専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作し、クライアントIDではなく接続元アドレスで制限する。
func (rl *RateLimiter) SignInMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.signIn)
}

func (rl *RateLimiter) middleware(set *limiterSet) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.admit(w, r, set) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AllowNewClient はクライアントインスタンスの新規生成を許可するか判定する。
// 超過時は429レスポンスを書き込んでfalseを返す。
func (rl *RateLimiter) AllowNewClient(w http.ResponseWriter, r *http.Request) bool {
	if rl.config.NewClientBurst <= 0 {
		return true
	}
	return rl.admit(w, r, rl.newClient)
}

func (rl *RateLimiter) admit(w http.ResponseWriter, r *http.Request, set *limiterSet) bool {
	key, ok := set.allow(r, time.Now())
	if ok {
		return true
	}
	writeRateLimitResponse(w, set.limit)
	slog.Warn("rate limit exceeded",
		slog.String("key", key),
		slog.String("limit_type", set.name),
	)
	return false
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// SignInLimiterCount は現在管理されているサインインリミッターのエントリ数を返す。
func (rl *RateLimiter) SignInLimiterCount() int {
	return rl.signIn.len()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	rl.general.evict(now, ttl)
	rl.signIn.evict(now, ttl)
	rl.newClient.evict(now, ttl)
}

// limiterKey はレート制限のキーを返す。クライアントIDを優先する。
func limiterKey(r *http.Request) string {
	if id, ok := ClientIDFromContext(r.Context()); ok {
		return "client:" + id
	}
	return remoteAddrKey(r)
}

// remoteAddrKey は接続元アドレスのみからレート制限のキーを返す。
func remoteAddrKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitError())
}
