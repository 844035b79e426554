package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/storefront/internal/model"
)

// CatalogReader は商品ハンドラーとカートハンドラーが必要とするカタログのインターフェース。
type CatalogReader interface {
	FetchProducts(ctx context.Context)
	Products() []model.Product
	Loading() bool
	Err() string
	Find(id string) (model.Product, bool)
}

// ProductHandler は商品カタログのHTTPハンドラー。
type ProductHandler struct {
	catalog CatalogReader
}

// NewProductHandler はProductHandlerを生成する。
func NewProductHandler(catalog CatalogReader) *ProductHandler {
	return &ProductHandler{catalog: catalog}
}

type productResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Reference string `json:"reference"`
	Price     int64  `json:"price"`
	ImageURL  string `json:"image_url"`
	Stock     int    `json:"stock"`
}

type productListResponse struct {
	Products []productResponse `json:"products"`
	Loading  bool              `json:"loading"`
	Error    string            `json:"error"`
}

// ListProducts はカタログを再取得して商品一覧を返す。
// 取得に失敗した場合は前回の一覧とエラーメッセージを返す。
// GET /api/products
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	h.catalog.FetchProducts(r.Context())

	products := h.catalog.Products()
	resp := productListResponse{
		Products: make([]productResponse, 0, len(products)),
		Loading:  h.catalog.Loading(),
		Error:    h.catalog.Err(),
	}
	for _, p := range products {
		resp.Products = append(resp.Products, toProductResponse(p))
	}

	writeJSON(w, http.StatusOK, resp)
}

func toProductResponse(p model.Product) productResponse {
	return productResponse{
		ID:        p.ID,
		Name:      p.Name,
		Reference: p.Reference,
		Price:     p.Price,
		ImageURL:  p.ImageURL,
		Stock:     p.Stock,
	}
}
