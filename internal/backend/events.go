package backend

import (
	"context"
	"sync"

	"github.com/hitoshi/storefront/internal/model"
)

// Listener は認証状態変更イベントを受け取るコールバック。
type Listener func(ctx context.Context, ev model.AuthEvent)

// Hub は認証状態変更イベントの購読者を管理する。
// Publishは購読順に同期的にリスナーを呼び出す。
type Hub struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []registered
}

type registered struct {
	id uint64
	fn Listener
}

// Subscription はSubscribeが返す購読ハンドル。
type Subscription struct {
	hub  *Hub
	id   uint64
	once sync.Once
}

// NewHub はHubを生成する。
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe はリスナーを登録する。
func (h *Hub) Subscribe(fn Listener) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	h.listeners = append(h.listeners, registered{id: h.nextID, fn: fn})
	return &Subscription{hub: h, id: h.nextID}
}

// Publish はイベントを全リスナーに配信する。
// 配信中にSubscribe/Unsubscribeされても、呼び出し時点の購読者にのみ配信する。
func (h *Hub) Publish(ctx context.Context, ev model.AuthEvent) {
	h.mu.Lock()
	snapshot := make([]Listener, len(h.listeners))
	for i, l := range h.listeners {
		snapshot[i] = l.fn
	}
	h.mu.Unlock()

	for _, fn := range snapshot {
		fn(ctx, ev)
	}
}

// Len は現在の購読者数を返す。
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, l := range h.listeners {
		if l.id == id {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			return
		}
	}
}

// Unsubscribe は購読を解除する。複数回呼んでも安全。
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.hub.remove(s.id)
	})
}
