package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/backend"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
)

const oauthStateCookie = "oauth_state"

// サインイン方式（メトリクスのラベル）
const (
	signInMethodPassword = "password"
	signInMethodGoogle   = "google"
	signInMethodSignUp   = "signup"
)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // アクセストークンCookieの有効期間（秒）
}

func (c AuthHandlerConfig) cookieConfig() middleware.CookieConfig {
	return middleware.CookieConfig{Secure: c.CookieSecure, Domain: c.CookieDomain}
}

// AuthHandler はサインイン・アカウント作成・サインアウトのHTTPハンドラー。
// 操作はリクエストに対応するクライアントインスタンスのセッションストアに委譲する。
type AuthHandler struct {
	config  AuthHandlerConfig
	metrics metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(config AuthHandlerConfig, mc metrics.MetricsCollector) *AuthHandler {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &AuthHandler{config: config, metrics: mc}
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type signUpResponse struct {
	User userResponse `json:"user"`
}

type meResponse struct {
	User    userResponse     `json:"user"`
	Profile *profileResponse `json:"profile"`
	IsAdmin bool             `json:"is_admin"`
}

// SignIn はメールアドレスとパスワードでサインインする。
// POST /auth/login
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	inst, ok := instanceFrom(w, r)
	if !ok {
		return
	}

	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// 認証状態変更の購読を登録してからサインインする
	if err := inst.Session.EnsureInitialized(r.Context()); err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	err := inst.Session.SignIn(r.Context(), req.Email, req.Password)
	h.metrics.RecordSignIn(signInMethodPassword, err == nil)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	middleware.SetAccessTokenCookie(w, h.config.cookieConfig(), inst.Remote.AccessToken(), h.config.SessionMaxAge)
	w.WriteHeader(http.StatusNoContent)
}

// SignUp はアカウントを作成する。セッションが発行された場合はそのままサインイン状態になる。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	inst, ok := instanceFrom(w, r)
	if !ok {
		return
	}

	var req signUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := inst.Session.EnsureInitialized(r.Context()); err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	result, err := inst.Session.SignUp(r.Context(), req.Email, req.Password, model.SignUpMetadata{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	h.metrics.RecordSignIn(signInMethodSignUp, err == nil)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	if result.Session != nil {
		middleware.SetAccessTokenCookie(w, h.config.cookieConfig(), result.Session.AccessToken, h.config.SessionMaxAge)
	}
	writeJSON(w, http.StatusCreated, signUpResponse{User: toUserResponse(result.User)})
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	inst, ok := instanceFrom(w, r)
	if !ok {
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	url, err := inst.Session.SignInWithGoogle(r.Context(), state)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// GoogleCallback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	inst, ok := instanceFrom(w, r)
	if !ok {
		return
	}

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("paramètre state invalide"))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("code d'autorisation manquant"))
		return
	}

	// 3. セッションへの交換
	session, err := inst.Remote.ExchangeCodeForSession(r.Context(), code)
	h.metrics.RecordSignIn(signInMethodGoogle, err == nil)
	if errors.Is(err, backend.ErrUnverifiedEmail) {
		slog.Warn("oauth callback rejected unverified email")
		middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewEmailNotVerifiedError())
		return
	}
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewOAuthFailedError())
		return
	}

	middleware.SetAccessTokenCookie(w, h.config.cookieConfig(), session.AccessToken, h.config.SessionMaxAge)

	// 4. リダイレクト後の再読み込みと同様にセッションストアを初期化し直す
	if err := inst.Session.Initialize(r.Context()); err != nil {
		slog.Warn("failed to reinitialize session store", slog.String("error", err.Error()))
	}

	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// SignOut はサインアウトする。リモートの失敗に関わらずCookieとローカル状態を破棄する。
// POST /auth/logout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	inst, ok := instanceFrom(w, r)
	if !ok {
		return
	}

	inst.Session.SignOut(r.Context())
	middleware.ClearAccessTokenCookie(w, h.config.cookieConfig())
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のユーザー、プロフィール、管理者フラグを返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	inst, ok := instanceFrom(w, r)
	if !ok {
		return
	}

	if err := inst.Session.EnsureInitialized(r.Context()); err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	user := inst.Session.User()
	if user == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		User:    toUserResponse(*user),
		Profile: toProfileResponse(inst.Session.Profile()),
		IsAdmin: inst.Session.IsAdmin(),
	})
}

// writeAuthError は認証エラーを統一エラーフォーマットに変換して書き込む。
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, backend.ErrInvalidCredentials):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
	case errors.Is(err, backend.ErrEmailTaken):
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewEmailTakenError())
	case errors.Is(err, backend.ErrInvalidSignUp):
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidSignUpError("email valide et mot de passe de 6 à 72 octets requis"))
	case errors.Is(err, backend.ErrUnsupportedProvider):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewUnsupportedProviderError("google"))
	default:
		slog.Error("auth operation failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
