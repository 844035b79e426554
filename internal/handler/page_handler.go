package handler

import (
	"net/http"

	"github.com/hitoshi/storefront/internal/route"
)

type pageResponse struct {
	Route  string `json:"route"`
	View   string `json:"view"`
	Layout string `json:"layout"`
	Path   string `json:"path"`
}

// NewPageHandler はルートテーブルのリーフに対応するページ情報を返すハンドラーを生成する。
// ガードを通過したリクエストのみが到達する。
func NewPageHandler(leaf route.Leaf) http.HandlerFunc {
	resp := pageResponse{
		Route: leaf.Record.Name,
		View:  leaf.Record.View,
		Path:  leaf.FullPath,
	}
	for _, rec := range leaf.Chain {
		if rec.Layout != "" {
			resp.Layout = rec.Layout
			break
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, resp)
	}
}
