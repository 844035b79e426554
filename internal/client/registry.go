// Package client はブラウザクライアントごとの状態（リモートクライアント、セッション、カート）を管理する。
package client

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/storefront/internal/backend"
	"github.com/hitoshi/storefront/internal/cart"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/session"
)

// Instance は1つのブラウザクライアントに対応する状態の組。
type Instance struct {
	ID      string
	Remote  *backend.Client
	Session *session.Store
	Cart    *cart.Cart

	mu          sync.Mutex
	lastAccess  time.Time
	cartItems   int
	unwatchCart func()
}

// Config はRegistryの設定を保持する。
type Config struct {
	IdleTTL         time.Duration // 最終アクセスからの保持期間
	CleanupInterval time.Duration // アイドルインスタンスの破棄間隔
}

// DefaultConfig はデフォルトの設定を返す。
func DefaultConfig() Config {
	return Config{
		IdleTTL:         2 * time.Hour,
		CleanupInterval: 5 * time.Minute,
	}
}

// Registry はクライアントIDごとのInstanceを保持する。
// 一定時間アクセスのないInstanceはバックグラウンドで破棄する。
type Registry struct {
	auth     backend.AuthBackend
	profiles repository.ProfileRepository
	metrics  metrics.MetricsCollector
	config   Config
	now      func() time.Time

	mu        sync.RWMutex
	instances map[string]*Instance

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRegistry は新しいRegistryを生成し、アイドルインスタンスの破棄を開始する。
func NewRegistry(authBackend backend.AuthBackend, profiles repository.ProfileRepository, mc metrics.MetricsCollector, config Config) *Registry {
	if mc == nil {
		mc = metrics.Nop{}
	}
	defaults := DefaultConfig()
	if config.IdleTTL <= 0 {
		config.IdleTTL = defaults.IdleTTL
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}

	r := &Registry{
		auth:      authBackend,
		profiles:  profiles,
		metrics:   mc,
		config:    config,
		now:       time.Now,
		instances: make(map[string]*Instance),
		stopCh:    make(chan struct{}),
	}

	go r.cleanupLoop()

	return r
}

// GetOrCreate はクライアントIDに対応するInstanceを返す。
// 存在しない場合はaccessTokenを復元対象として新しいInstanceを生成する。
func (r *Registry) GetOrCreate(id, accessToken string) *Instance {
	r.mu.RLock()
	inst, exists := r.instances[id]
	r.mu.RUnlock()

	if exists {
		inst.touch(r.now())
		return inst
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// ダブルチェック
	if inst, exists := r.instances[id]; exists {
		inst.touch(r.now())
		return inst
	}

	inst = r.newInstance(id, accessToken)
	r.instances[id] = inst
	r.metrics.SetActiveClients(len(r.instances))

	slog.Debug("client instance created", slog.String("client_id", id))
	return inst
}

// Get はクライアントIDに対応するInstanceを返す。
func (r *Registry) Get(id string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	return inst, ok
}

// Len は保持しているInstance数を返す。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// Stop はバックグラウンドの破棄を停止し、全Instanceを閉じる。
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)

		r.mu.Lock()
		defer r.mu.Unlock()
		for id, inst := range r.instances {
			r.release(inst)
			delete(r.instances, id)
		}
		r.metrics.SetActiveClients(0)
	})
}

func (r *Registry) newInstance(id, accessToken string) *Instance {
	remote := backend.NewClient(r.auth, r.profiles, accessToken)
	inst := &Instance{
		ID:         id,
		Remote:     remote,
		Session:    session.NewStore(remote, session.WithOAuthProvider(r.auth.ProviderName())),
		Cart:       cart.New(),
		lastAccess: r.now(),
	}

	inst.unwatchCart = inst.Cart.Subscribe(func(items []model.CartItem) {
		total := cart.TotalItems(items)
		inst.mu.Lock()
		delta := total - inst.cartItems
		inst.cartItems = total
		inst.mu.Unlock()
		r.metrics.AddCartItems(delta)
	})

	return inst
}

// release はInstanceの購読を解除し、カートのメトリクスを差し引く。
func (r *Registry) release(inst *Instance) {
	inst.Session.Close()
	inst.unwatchCart()

	inst.mu.Lock()
	remaining := inst.cartItems
	inst.cartItems = 0
	inst.mu.Unlock()
	if remaining != 0 {
		r.metrics.AddCartItems(-remaining)
	}
}

func (inst *Instance) touch(now time.Time) {
	inst.mu.Lock()
	inst.lastAccess = now
	inst.mu.Unlock()
}

func (inst *Instance) idleSince() time.Time {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.lastAccess
}

// cleanupLoop はバックグラウンドでアイドルInstanceを定期的に破棄する。
func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからIdleTTLを超えたInstanceを破棄する。
func (r *Registry) cleanup() {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, inst := range r.instances {
		if now.Sub(inst.idleSince()) > r.config.IdleTTL {
			r.release(inst)
			delete(r.instances, id)
			evicted++
		}
	}

	if evicted > 0 {
		r.metrics.SetActiveClients(len(r.instances))
		slog.Info("idle client instances evicted", slog.Int("count", evicted))
	}
}
