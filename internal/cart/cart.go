// Package cart はクライアントインスタンスごとのショッピングカートを提供する。
package cart

import (
	"sync"

	"github.com/hitoshi/storefront/internal/model"
)

// Observer は変更後のカートのスナップショットを受け取る。
type Observer func(items []model.CartItem)

// Cart はカート内の商品行を保持する。1商品につき1行。
type Cart struct {
	mu        sync.Mutex
	items     []model.CartItem
	nextID    int
	observers map[int]Observer
}

// New は空のCartを生成する。
func New() *Cart {
	return &Cart{observers: make(map[int]Observer)}
}

// AddItem は商品をカートに追加する。既に行がある場合は数量を1増やす。
// 新しい行には追加時点の名称・価格・画像・在庫数を保持する。
func (c *Cart) AddItem(p model.Product) {
	c.mutate(func() bool {
		if i := c.indexOf(p.ID); i >= 0 {
			c.items[i].Quantity++
			return true
		}
		c.items = append(c.items, model.CartItem{
			ID:        p.ID,
			Name:      p.Name,
			Reference: p.Reference,
			Price:     p.Price,
			ImageURL:  p.ImageURL,
			Quantity:  1,
			MaxStock:  p.Stock,
		})
		return true
	})
}

// RemoveItem は指定商品の行を削除する。存在しない場合は何もせずfalseを返す。
func (c *Cart) RemoveItem(productID string) bool {
	return c.mutate(func() bool {
		i := c.indexOf(productID)
		if i < 0 {
			return false
		}
		c.items = append(c.items[:i], c.items[i+1:]...)
		return true
	})
}

// UpdateQuantity は数量を設定する。0以下なら行を削除し、在庫数を超える値は無視する。
// 変更を適用した場合にtrueを返す。
func (c *Cart) UpdateQuantity(productID string, quantity int) bool {
	return c.mutate(func() bool {
		i := c.indexOf(productID)
		if i < 0 {
			return false
		}
		switch {
		case quantity <= 0:
			c.items = append(c.items[:i], c.items[i+1:]...)
		case quantity <= c.items[i].MaxStock:
			c.items[i].Quantity = quantity
		default:
			return false
		}
		return true
	})
}

// Clear はカートを空にする。
func (c *Cart) Clear() {
	c.mutate(func() bool {
		c.items = nil
		return true
	})
}

// Items はカートのスナップショットを返す。
func (c *Cart) Items() []model.CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Subscribe は変更通知を購読する。戻り値の関数で購読を解除する。
func (c *Cart) Subscribe(fn Observer) (unsubscribe func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// mutate はロック下で変更を適用し、変更があった場合のみロック外で購読者に通知する。
func (c *Cart) mutate(apply func() bool) bool {
	c.mu.Lock()
	if !apply() {
		c.mu.Unlock()
		return false
	}
	items := c.snapshot()
	observers := make([]Observer, 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()

	for _, fn := range observers {
		fn(items)
	}
	return true
}

func (c *Cart) snapshot() []model.CartItem {
	out := make([]model.CartItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.items {
		if c.items[i].ID == productID {
			return i
		}
	}
	return -1
}

// TotalItems は数量の合計を返す。
func TotalItems(items []model.CartItem) int {
	total := 0
	for _, it := range items {
		total += it.Quantity
	}
	return total
}

// TotalPrice は価格×数量の合計を返す（最小通貨単位）。
func TotalPrice(items []model.CartItem) int64 {
	var total int64
	for _, it := range items {
		total += it.Price * int64(it.Quantity)
	}
	return total
}
