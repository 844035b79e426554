package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
)

// --- モック定義 ---

type mockAuth struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	signInFn         func(ctx context.Context, email, password string) (*model.Session, error)
	signUpFn         func(ctx context.Context, email, password string, meta model.SignUpMetadata) (*model.SignUpResult, error)
	restoreFn        func(ctx context.Context, token string) (*model.Session, error)
	logoutFn         func(ctx context.Context, token string) error
}

func (m *mockAuth) ProviderName() string { return "google" }

func (m *mockAuth) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuth) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, nil
}

func (m *mockAuth) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuth) SignUp(ctx context.Context, email, password string, meta model.SignUpMetadata) (*model.SignUpResult, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password, meta)
	}
	return nil, nil
}

func (m *mockAuth) RestoreSession(ctx context.Context, token string) (*model.Session, error) {
	if m.restoreFn != nil {
		return m.restoreFn(ctx, token)
	}
	return nil, ErrInvalidToken
}

func (m *mockAuth) Logout(ctx context.Context, token string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, token)
	}
	return nil
}

type mockProfileRepo struct {
	findByIDFn   func(ctx context.Context, id string) (*model.Profile, error)
	updateNameFn func(ctx context.Context, id, firstName, lastName string) error
}

func (m *mockProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockProfileRepo) UpdateName(ctx context.Context, id, firstName, lastName string) error {
	if m.updateNameFn != nil {
		return m.updateNameFn(ctx, id, firstName, lastName)
	}
	return nil
}

var _ AuthBackend = (*mockAuth)(nil)
var _ repository.ProfileRepository = (*mockProfileRepo)(nil)

func testSession(token string) *model.Session {
	return &model.Session{ID: "s-1", AccessToken: token, User: model.AuthUser{ID: "user-1", Email: "a@example.com"}}
}

// --- テスト ---

func TestGetSession_NoToken(t *testing.T) {
	c := NewClient(&mockAuth{
		restoreFn: func(context.Context, string) (*model.Session, error) {
			t.Error("RestoreSession must not be called without a token")
			return nil, nil
		},
	}, &mockProfileRepo{}, "")

	session, err := c.GetSession(context.Background())
	if err != nil || session != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", session, err)
	}
}

func TestGetSession_InvalidTokenIsDiscarded(t *testing.T) {
	c := NewClient(&mockAuth{}, &mockProfileRepo{}, "stale")

	session, err := c.GetSession(context.Background())
	if err != nil || session != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", session, err)
	}
	if c.AccessToken() != "" {
		t.Errorf("AccessToken = %q, want empty", c.AccessToken())
	}
}

func TestGetSession_BackendError(t *testing.T) {
	c := NewClient(&mockAuth{
		restoreFn: func(context.Context, string) (*model.Session, error) {
			return nil, errors.New("db down")
		},
	}, &mockProfileRepo{}, "tok")

	if _, err := c.GetSession(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if c.AccessToken() != "tok" {
		t.Error("token must be kept on a transient failure")
	}
}

func TestSignInWithPassword_StoresTokenBeforePublishing(t *testing.T) {
	c := NewClient(&mockAuth{
		signInFn: func(context.Context, string, string) (*model.Session, error) {
			return testSession("tok-1"), nil
		},
	}, &mockProfileRepo{}, "")

	var events []model.AuthEvent
	var tokenAtEvent string
	c.OnAuthStateChange(func(_ context.Context, ev model.AuthEvent) {
		events = append(events, ev)
		tokenAtEvent = c.AccessToken()
	})

	if _, err := c.SignInWithPassword(context.Background(), "a@example.com", "pw"); err != nil {
		t.Fatalf("SignInWithPassword: %v", err)
	}
	if len(events) != 1 || events[0].Type != model.AuthEventSignedIn || events[0].Session.User.ID != "user-1" {
		t.Errorf("events = %+v", events)
	}
	if tokenAtEvent != "tok-1" {
		t.Errorf("token at event = %q", tokenAtEvent)
	}
}

func TestSignInWithPassword_ErrorPublishesNothing(t *testing.T) {
	c := NewClient(&mockAuth{
		signInFn: func(context.Context, string, string) (*model.Session, error) {
			return nil, ErrInvalidCredentials
		},
	}, &mockProfileRepo{}, "")
	c.OnAuthStateChange(func(context.Context, model.AuthEvent) { t.Error("unexpected event") })

	_, err := c.SignInWithPassword(context.Background(), "a@example.com", "bad")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v", err)
	}
}

func TestSignInWithOAuth(t *testing.T) {
	c := NewClient(&mockAuth{
		getLoginURLFn: func(state string) string { return "https://accounts.google.com/?state=" + state },
	}, &mockProfileRepo{}, "")

	url, err := c.SignInWithOAuth(context.Background(), "google", "xyz")
	if err != nil || url != "https://accounts.google.com/?state=xyz" {
		t.Errorf("got (%q, %v)", url, err)
	}

	if _, err := c.SignInWithOAuth(context.Background(), "github", "xyz"); !errors.Is(err, ErrUnsupportedProvider) {
		t.Errorf("err = %v, want ErrUnsupportedProvider", err)
	}
}

func TestSignUp_WithoutSessionDoesNotPublish(t *testing.T) {
	c := NewClient(&mockAuth{
		signUpFn: func(context.Context, string, string, model.SignUpMetadata) (*model.SignUpResult, error) {
			return &model.SignUpResult{User: model.AuthUser{ID: "user-1"}}, nil
		},
	}, &mockProfileRepo{}, "")
	c.OnAuthStateChange(func(context.Context, model.AuthEvent) { t.Error("unexpected event") })

	if _, err := c.SignUp(context.Background(), "a@example.com", "secret123", model.SignUpMetadata{}); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
}

func TestSignOut_ClearsTokenEvenWhenRemoteFails(t *testing.T) {
	c := NewClient(&mockAuth{
		logoutFn: func(context.Context, string) error { return errors.New("network") },
	}, &mockProfileRepo{}, "tok")

	var got model.AuthEventType
	c.OnAuthStateChange(func(_ context.Context, ev model.AuthEvent) { got = ev.Type })

	if err := c.SignOut(context.Background()); err == nil {
		t.Error("expected remote error to be returned")
	}
	if c.AccessToken() != "" {
		t.Error("token must be cleared")
	}
	if got != model.AuthEventSignedOut {
		t.Errorf("event = %q, want SIGNED_OUT", got)
	}
}

func TestFetchProfile_RequiresSession(t *testing.T) {
	c := NewClient(&mockAuth{}, &mockProfileRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Profile, error) {
			return &model.Profile{ID: id}, nil
		},
	}, "")

	if _, err := c.FetchProfile(context.Background(), "user-1"); !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
	if err := c.UpdateProfileName(context.Background(), "user-1", "A", "B"); !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}

	c.setAccessToken("tok")
	p, err := c.FetchProfile(context.Background(), "user-1")
	if err != nil || p.ID != "user-1" {
		t.Errorf("got (%v, %v)", p, err)
	}
}

func TestFetchProfile_NotFoundIsWrapped(t *testing.T) {
	c := NewClient(&mockAuth{}, &mockProfileRepo{}, "tok")

	if _, err := c.FetchProfile(context.Background(), "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetSession_ReissuedTokenPublishesTokenRefreshed(t *testing.T) {
	c := NewClient(&mockAuth{
		restoreFn: func(context.Context, string) (*model.Session, error) {
			return testSession("tok-2"), nil
		},
	}, &mockProfileRepo{}, "tok-1")

	var events []model.AuthEventType
	c.OnAuthStateChange(func(_ context.Context, ev model.AuthEvent) {
		events = append(events, ev.Type)
	})

	session, err := c.GetSession(context.Background())
	if err != nil || session == nil {
		t.Fatalf("GetSession = (%v, %v)", session, err)
	}
	if c.AccessToken() != "tok-2" {
		t.Errorf("AccessToken = %q, want tok-2", c.AccessToken())
	}
	if len(events) != 1 || events[0] != model.AuthEventTokenRefreshed {
		t.Errorf("events = %v, want [TOKEN_REFRESHED]", events)
	}
}

func TestGetSession_SameTokenPublishesNothing(t *testing.T) {
	c := NewClient(&mockAuth{
		restoreFn: func(_ context.Context, token string) (*model.Session, error) {
			return testSession(token), nil
		},
	}, &mockProfileRepo{}, "tok-1")

	published := 0
	c.OnAuthStateChange(func(context.Context, model.AuthEvent) { published++ })

	if _, err := c.GetSession(context.Background()); err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if published != 0 {
		t.Errorf("published = %d, want 0", published)
	}
}

func TestUpdateProfileName_PublishesUserUpdated(t *testing.T) {
	var updated []string
	c := NewClient(&mockAuth{
		restoreFn: func(_ context.Context, token string) (*model.Session, error) {
			return testSession(token), nil
		},
	}, &mockProfileRepo{
		updateNameFn: func(_ context.Context, id, firstName, lastName string) error {
			updated = append(updated, id, firstName, lastName)
			return nil
		},
	}, "tok-1")

	var got []model.AuthEvent
	c.OnAuthStateChange(func(_ context.Context, ev model.AuthEvent) { got = append(got, ev) })

	if err := c.UpdateProfileName(context.Background(), "user-1", "Ada", "Lovelace"); err != nil {
		t.Fatalf("UpdateProfileName: %v", err)
	}
	if len(updated) != 3 || updated[1] != "Ada" {
		t.Errorf("UpdateName args = %v", updated)
	}
	if len(got) != 1 || got[0].Type != model.AuthEventUserUpdated || got[0].Session == nil || got[0].Session.User.ID != "user-1" {
		t.Errorf("events = %+v, want one USER_UPDATED with the current session", got)
	}
}

func TestUpdateProfileName_FailurePublishesNothing(t *testing.T) {
	c := NewClient(&mockAuth{}, &mockProfileRepo{
		updateNameFn: func(context.Context, string, string, string) error { return errors.New("db down") },
	}, "tok-1")

	published := 0
	c.OnAuthStateChange(func(context.Context, model.AuthEvent) { published++ })

	if err := c.UpdateProfileName(context.Background(), "user-1", "Ada", "Lovelace"); err == nil {
		t.Fatal("expected error")
	}
	if published != 0 {
		t.Errorf("published = %d, want 0", published)
	}
}
