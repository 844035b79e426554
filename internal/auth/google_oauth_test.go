package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// fakeGoogle はトークンエンドポイントとユーザー情報エンドポイントを提供するテスト用サーバー。
type fakeGoogle struct {
	tokenStatus int
	tokenBody   map[string]any
	userStatus  int
	userBody    map[string]any

	gotForm url.Values
	gotAuth string
}

func (f *fakeGoogle) start(t *testing.T) (*httptest.Server, *GoogleOAuthProvider) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		f.gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
		}
		json.NewEncoder(w).Encode(f.tokenBody)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		f.gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		if f.userStatus != 0 {
			w.WriteHeader(f.userStatus)
		}
		json.NewEncoder(w).Encode(f.userBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:     "storefront-client",
		ClientSecret: "storefront-secret",
		RedirectURL:  "http://localhost:8080/auth/google/callback",
		TokenURL:     srv.URL + "/token",
		UserInfoURL:  srv.URL + "/userinfo",
		HTTPClient:   srv.Client(),
	})
	return srv, provider
}

func verifiedUser() map[string]any {
	return map[string]any{
		"sub":            "google-sub-12345",
		"email":          "marie.curie@gmail.com",
		"email_verified": true,
		"name":           "Marie Curie",
		"picture":        "https://lh3.googleusercontent.com/a/photo",
	}
}

func TestGoogleOAuthProvider_GetLoginURL(t *testing.T) {
	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:    "storefront-client",
		RedirectURL: "http://localhost:8080/auth/google/callback",
	})

	raw := provider.GetLoginURL("state-xyz")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid URL %q: %v", raw, err)
	}
	if !strings.HasPrefix(raw, defaultGoogleAuthURL+"?") {
		t.Errorf("URL = %q, want prefix %q", raw, defaultGoogleAuthURL)
	}

	q := u.Query()
	want := map[string]string{
		"client_id":     "storefront-client",
		"redirect_uri":  "http://localhost:8080/auth/google/callback",
		"response_type": "code",
		"scope":         "openid email profile",
		"state":         "state-xyz",
		"prompt":        "select_account",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestGoogleOAuthProvider_ExchangeCode_Success(t *testing.T) {
	fg := &fakeGoogle{
		tokenBody: map[string]any{"access_token": "google-access", "token_type": "Bearer", "expires_in": 3600},
		userBody:  verifiedUser(),
	}
	_, provider := fg.start(t)

	info, err := provider.ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	if fg.gotForm.Get("code") != "auth-code" || fg.gotForm.Get("grant_type") != "authorization_code" {
		t.Errorf("token form = %v", fg.gotForm)
	}
	if fg.gotForm.Get("client_secret") != "storefront-secret" {
		t.Errorf("client_secret = %q", fg.gotForm.Get("client_secret"))
	}
	if fg.gotAuth != "Bearer google-access" {
		t.Errorf("Authorization = %q, want %q", fg.gotAuth, "Bearer google-access")
	}

	want := OAuthUserInfo{
		ProviderUserID: "google-sub-12345",
		Email:          "marie.curie@gmail.com",
		Name:           "Marie Curie",
		AvatarURL:      "https://lh3.googleusercontent.com/a/photo",
		Provider:       ProviderGoogle,
	}
	if *info != want {
		t.Errorf("user info = %+v, want %+v", *info, want)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_Failures(t *testing.T) {
	unverified := verifiedUser()
	unverified["email_verified"] = false
	noSub := verifiedUser()
	delete(noSub, "sub")

	tests := []struct {
		name       string
		google     fakeGoogle
		wantErr    error
		wantSubstr string
	}{
		{
			name:   "コード再利用",
			google: fakeGoogle{
				tokenStatus: http.StatusBadRequest,
				tokenBody:   map[string]any{"error": "invalid_grant", "error_description": "Code was already redeemed."},
			},
			wantSubstr: "invalid_grant",
		},
		{
			name:       "アクセストークンが空",
			google:     fakeGoogle{tokenBody: map[string]any{"token_type": "Bearer"}},
			wantSubstr: "empty access token",
		},
		{
			name:   "ユーザー情報の取得失敗",
			google: fakeGoogle{
				tokenBody:  map[string]any{"access_token": "tok"},
				userStatus: http.StatusUnauthorized,
				userBody:   map[string]any{},
			},
			wantSubstr: "status 401",
		},
		{
			name:       "subが空",
			google:     fakeGoogle{tokenBody: map[string]any{"access_token": "tok"}, userBody: noSub},
			wantSubstr: "empty sub",
		},
		{
			name:    "メール未確認",
			google:  fakeGoogle{tokenBody: map[string]any{"access_token": "tok"}, userBody: unverified},
			wantErr: ErrUnverifiedEmail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fg := tt.google
			_, provider := fg.start(t)

			info, err := provider.ExchangeCode(context.Background(), "code")
			if err == nil {
				t.Fatalf("expected error, got info %+v", info)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantSubstr != "" && !strings.Contains(err.Error(), tt.wantSubstr) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.wantSubstr)
			}
		})
	}
}

func TestGoogleOAuthProvider_Name(t *testing.T) {
	if got := NewGoogleOAuthProvider(GoogleOAuthConfig{}).Name(); got != ProviderGoogle {
		t.Errorf("Name() = %q, want %q", got, ProviderGoogle)
	}
}
