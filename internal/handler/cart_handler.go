package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/storefront/internal/cart"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
)

// カート操作（メトリクスのラベル）
const (
	cartOpAdd    = "add"
	cartOpUpdate = "update"
	cartOpRemove = "remove"
	cartOpClear  = "clear"
)

// ProductFinder はカタログに存在しない商品をIDで取得する。repository.ProductRepositoryが実装する。
type ProductFinder interface {
	FindByID(ctx context.Context, id string) (*model.Product, error)
}

// CartHandler はカート操作のHTTPハンドラー。
// カートはリクエストに対応するクライアントインスタンスが保持する。
type CartHandler struct {
	catalog  CatalogReader
	products ProductFinder
	metrics  metrics.MetricsCollector
}

// NewCartHandler はCartHandlerを生成する。
func NewCartHandler(catalog CatalogReader, products ProductFinder, mc metrics.MetricsCollector) *CartHandler {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &CartHandler{catalog: catalog, products: products, metrics: mc}
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

type cartItemResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Reference string `json:"reference"`
	Price     int64  `json:"price"`
	ImageURL  string `json:"image_url"`
	Quantity  int    `json:"quantity"`
	MaxStock  int    `json:"max_stock"`
}

type cartResponse struct {
	Items      []cartItemResponse `json:"items"`
	TotalItems int                `json:"total_items"`
	TotalPrice int64              `json:"total_price"`
}

// GetCart はカートの内容と合計を返す。
// GET /api/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	inst, ok := instanceFrom(w, r)
	if !ok {
		return
	}
	writeCart(w, inst.Cart)
}

// AddItem は商品をカートに追加する。既存の行がある場合は数量を1増やす。
// POST /api/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	inst, ok := instanceFrom(w, r)
	if !ok {
		return
	}

	var req addCartItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := uuid.Parse(req.ProductID); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("product_id invalide"))
		return
	}

	product, found, err := h.lookup(r.Context(), req.ProductID)
	if err != nil {
		slog.Error("failed to find product",
			slog.String("product_id", req.ProductID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}
	if !found {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProductNotFoundError(req.ProductID))
		return
	}

	inst.Cart.AddItem(product)
	h.metrics.RecordCartMutation(cartOpAdd)
	writeCart(w, inst.Cart)
}

// UpdateQuantity は行の数量を変更する。0以下は削除、在庫を超える値は無視する。
// 無視された変更は操作として記録しない。
// PATCH /api/cart/items/{id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	inst, ok := instanceFrom(w, r)
	if !ok {
		return
	}

	var req updateQuantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("quantity manquant"))
		return
	}

	if inst.Cart.UpdateQuantity(chi.URLParam(r, "id"), *req.Quantity) {
		h.metrics.RecordCartMutation(cartOpUpdate)
	}
	writeCart(w, inst.Cart)
}

// RemoveItem は行を削除する。存在しない場合は何もしない。
// DELETE /api/cart/items/{id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	inst, ok := instanceFrom(w, r)
	if !ok {
		return
	}

	if inst.Cart.RemoveItem(chi.URLParam(r, "id")) {
		h.metrics.RecordCartMutation(cartOpRemove)
	}
	writeCart(w, inst.Cart)
}

// ClearCart はカートを空にする。
// DELETE /api/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	inst, ok := instanceFrom(w, r)
	if !ok {
		return
	}

	inst.Cart.Clear()
	h.metrics.RecordCartMutation(cartOpClear)
	writeCart(w, inst.Cart)
}

// lookup はカタログのキャッシュを優先し、なければリポジトリから商品を取得する。
func (h *CartHandler) lookup(ctx context.Context, id string) (model.Product, bool, error) {
	if p, ok := h.catalog.Find(id); ok {
		return p, true, nil
	}
	if h.products == nil {
		return model.Product{}, false, nil
	}
	p, err := h.products.FindByID(ctx, id)
	if err != nil {
		return model.Product{}, false, err
	}
	if p == nil {
		return model.Product{}, false, nil
	}
	return *p, true, nil
}

func writeCart(w http.ResponseWriter, c *cart.Cart) {
	items := c.Items()
	resp := cartResponse{
		Items:      make([]cartItemResponse, 0, len(items)),
		TotalItems: cart.TotalItems(items),
		TotalPrice: cart.TotalPrice(items),
	}
	for _, it := range items {
		resp.Items = append(resp.Items, cartItemResponse{
			ID:        it.ID,
			Name:      it.Name,
			Reference: it.Reference,
			Price:     it.Price,
			ImageURL:  it.ImageURL,
			Quantity:  it.Quantity,
			MaxStock:  it.MaxStock,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
