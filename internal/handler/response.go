// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/client"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをデコードする。失敗した場合は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("corps JSON illisible"))
		return false
	}
	return true
}

// instanceFrom はリクエストに対応するクライアントインスタンスを取得する。
// クライアントミドルウェアを通過していない場合は500を書き込む。
func instanceFrom(w http.ResponseWriter, r *http.Request) (*client.Instance, bool) {
	inst, ok := middleware.ClientFromContext(r.Context())
	if !ok {
		slog.Error("client instance missing from request context", slog.String("path", r.URL.Path))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return inst, true
}

// userResponse は認証ユーザーのAPIレスポンス。
type userResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func toUserResponse(u model.AuthUser) userResponse {
	meta := u.UserMetadata
	if meta == nil {
		meta = map[string]any{}
	}
	return userResponse{ID: u.ID, Email: u.Email, UserMetadata: meta}
}

// profileResponse はプロフィールのAPIレスポンス。
type profileResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	IsAdmin   bool   `json:"is_admin"`
}

func toProfileResponse(p *model.Profile) *profileResponse {
	if p == nil {
		return nil
	}
	return &profileResponse{
		ID:        p.ID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Phone:     p.Phone,
		IsAdmin:   p.IsAdmin,
	}
}
