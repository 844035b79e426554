// Package catalog は全クライアントで共有する商品カタログのキャッシュを提供する。
package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
)

// ProductLister は商品一覧の取得元。repository.ProductRepositoryが実装する。
type ProductLister interface {
	ListOrderedByName(ctx context.Context) ([]*model.Product, error)
}

// Catalog は名前順の商品一覧と取得状態（loading / error）を保持する。
type Catalog struct {
	source  ProductLister
	metrics metrics.MetricsCollector

	mu       sync.RWMutex
	products []model.Product
	loading  bool
	err      string
}

// New はCatalogを生成する。mcがnilの場合はメトリクスを記録しない。
func New(source ProductLister, mc metrics.MetricsCollector) *Catalog {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Catalog{source: source, metrics: mc}
}

// FetchProducts は商品一覧を取得し、成功時は一覧を丸ごと置き換える。
// 失敗時はユーザー向けのメッセージを保持し、以前の一覧を残す。
func (c *Catalog) FetchProducts(ctx context.Context) {
	c.mu.Lock()
	c.loading = true
	c.err = ""
	c.mu.Unlock()

	start := time.Now()
	rows, err := c.source.ListOrderedByName(ctx)
	c.metrics.RecordCatalogFetch(err == nil, time.Since(start))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false

	if err != nil {
		slog.Error("failed to fetch products", slog.String("error", err.Error()))
		c.err = model.CatalogUnavailableMessage
		return
	}

	products := make([]model.Product, 0, len(rows))
	for _, p := range rows {
		if p != nil {
			products = append(products, *p)
		}
	}
	c.products = products
}

// Products は商品一覧のコピーを返す。
func (c *Catalog) Products() []model.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Product, len(c.products))
	copy(out, c.products)
	return out
}

// Loading は取得中かどうかを返す。
func (c *Catalog) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Err は直近の取得失敗のメッセージを返す。失敗していない場合は空文字列。
func (c *Catalog) Err() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Find はキャッシュ済みの商品をIDで検索する。
func (c *Catalog) Find(id string) (model.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.products {
		if p.ID == id {
			return p, true
		}
	}
	return model.Product{}, false
}
