package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storefront/internal/backend"
	"github.com/hitoshi/storefront/internal/cart"
	"github.com/hitoshi/storefront/internal/client"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/session"
)

// --- モック定義 ---

// mockAuthBackend はbackend.AuthBackendのモック実装。
type mockAuthBackend struct {
	providerName     string
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	signInFn         func(ctx context.Context, email, password string) (*model.Session, error)
	signUpFn         func(ctx context.Context, email, password string, meta model.SignUpMetadata) (*model.SignUpResult, error)
	restoreSessionFn func(ctx context.Context, accessToken string) (*model.Session, error)
	logoutFn         func(ctx context.Context, accessToken string) error
}

func (m *mockAuthBackend) ProviderName() string {
	if m.providerName != "" {
		return m.providerName
	}
	return "google"
}

func (m *mockAuthBackend) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (m *mockAuthBackend) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, backend.ErrInvalidToken
}

func (m *mockAuthBackend) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, backend.ErrInvalidCredentials
}

func (m *mockAuthBackend) SignUp(ctx context.Context, email, password string, meta model.SignUpMetadata) (*model.SignUpResult, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password, meta)
	}
	return nil, backend.ErrInvalidSignUp
}

func (m *mockAuthBackend) RestoreSession(ctx context.Context, accessToken string) (*model.Session, error) {
	if m.restoreSessionFn != nil {
		return m.restoreSessionFn(ctx, accessToken)
	}
	return nil, backend.ErrInvalidToken
}

func (m *mockAuthBackend) Logout(ctx context.Context, accessToken string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, accessToken)
	}
	return nil
}

// mockProfileRepo はrepository.ProfileRepositoryのモック実装。
type mockProfileRepo struct {
	mu           sync.Mutex
	profiles     map[string]*model.Profile
	updateNameFn func(ctx context.Context, id, firstName, lastName string) error
}

func (m *mockProfileRepo) FindByID(_ context.Context, id string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProfileRepo) UpdateName(ctx context.Context, id, firstName, lastName string) error {
	if m.updateNameFn != nil {
		if err := m.updateNameFn(ctx, id, firstName, lastName); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.FirstName = firstName
	p.LastName = lastName
	return nil
}

// recordingMetrics はサインインとカート操作の記録を保持するMetricsCollector。
type recordingMetrics struct {
	mu      sync.Mutex
	signIns []string
	cartOps []string
}

func (m *recordingMetrics) RecordGuardDecision(string, string) {}
func (m *recordingMetrics) RecordSignIn(method string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := "failure"
	if success {
		result = "success"
	}
	m.signIns = append(m.signIns, method+":"+result)
}
func (m *recordingMetrics) RecordCatalogFetch(bool, time.Duration) {}
func (m *recordingMetrics) RecordCartMutation(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cartOps = append(m.cartOps, op)
}
func (m *recordingMetrics) AddCartItems(int)     {}
func (m *recordingMetrics) SetActiveClients(int) {}
func (m *recordingMetrics) RecordHTTPStatus(int) {}

// --- テストヘルパー ---

// newTestInstance はモックの認証基盤とプロフィールリポジトリを使うクライアントインスタンスを生成する。
func newTestInstance(authBackend backend.AuthBackend, profiles repository.ProfileRepository, accessToken string) *client.Instance {
	remote := backend.NewClient(authBackend, profiles, accessToken)
	return &client.Instance{
		ID:      "client-1",
		Remote:  remote,
		Session: session.NewStore(remote),
		Cart:    cart.New(),
	}
}

// withInstance はリクエストコンテキストにクライアントインスタンスを注入する。
func withInstance(r *http.Request, inst *client.Instance) *http.Request {
	return r.WithContext(middleware.ContextWithClient(r.Context(), inst))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// findCookie はレスポンスから指定名のCookieを探す。
func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
