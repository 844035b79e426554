package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/storefront/internal/catalog"
	"github.com/hitoshi/storefront/internal/model"
)

// mockProductLister はcatalog.ProductListerのモック実装。
type mockProductLister struct {
	listFn func(ctx context.Context) ([]*model.Product, error)
}

func (m *mockProductLister) ListOrderedByName(ctx context.Context) ([]*model.Product, error) {
	return m.listFn(ctx)
}

func TestProductHandler_ListProducts_TriggersFetch(t *testing.T) {
	c := testCatalog()
	h := NewProductHandler(c)

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	w := httptest.NewRecorder()

	h.ListProducts(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if c.fetchCalls != 1 {
		t.Errorf("FetchProducts calls = %d, want 1", c.fetchCalls)
	}

	var resp productListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(resp.Products) != 2 || resp.Products[0].Name != "Mug" || resp.Products[0].Price != 1250 {
		t.Errorf("products = %+v", resp.Products)
	}
	if resp.Loading || resp.Error != "" {
		t.Errorf("loading = %v, error = %q", resp.Loading, resp.Error)
	}
}

func TestProductHandler_ListProducts_FailureKeepsStaleList(t *testing.T) {
	fail := false
	lister := &mockProductLister{
		listFn: func(ctx context.Context) ([]*model.Product, error) {
			if fail {
				return nil, errors.New("connection reset")
			}
			return []*model.Product{{ID: productMugID, Name: "Mug", Price: 1250}}, nil
		},
	}
	h := NewProductHandler(catalog.New(lister, nil))

	h.ListProducts(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/products", nil))

	fail = true
	w := httptest.NewRecorder()
	h.ListProducts(w, httptest.NewRequest(http.MethodGet, "/api/products", nil))

	var resp productListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Error != model.CatalogUnavailableMessage {
		t.Errorf("error = %q, want %q", resp.Error, model.CatalogUnavailableMessage)
	}
	if len(resp.Products) != 1 || resp.Products[0].ID != productMugID {
		t.Errorf("stale products = %+v", resp.Products)
	}
}

func TestProductHandler_ListProducts_EmptyCatalogEncodesEmptyArray(t *testing.T) {
	h := NewProductHandler(&stubCatalog{})

	w := httptest.NewRecorder()
	h.ListProducts(w, httptest.NewRequest(http.MethodGet, "/api/products", nil))

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if string(raw["products"]) != "[]" {
		t.Errorf("products = %s, want []", raw["products"])
	}
}
