// Package backend はストアフロントから見たリモートデータクライアントを提供する。
//
// 認証（パスワード、Google OAuth、アカウント作成、サインアウト）、
// アクセストークンからのセッション復元、認証状態変更イベントの配信、
// usersテーブルの操作を1つのクライアントインスタンスにまとめる。
// クライアントインスタンスはブラウザクライアントごとに1つ生成される。
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/storefront/internal/auth"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
)

var (
	ErrInvalidCredentials  = auth.ErrInvalidCredentials
	ErrEmailTaken          = auth.ErrEmailTaken
	ErrInvalidSignUp       = auth.ErrInvalidSignUp
	ErrInvalidToken        = auth.ErrInvalidToken
	ErrUnverifiedEmail     = auth.ErrUnverifiedEmail
	ErrNoSession           = errors.New("no active session")
	ErrUnsupportedProvider = errors.New("unsupported oauth provider")
)

// AuthBackend は認証基盤のインターフェース。auth.Serviceが実装する。
type AuthBackend interface {
	ProviderName() string
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, email, password string, meta model.SignUpMetadata) (*model.SignUpResult, error)
	RestoreSession(ctx context.Context, accessToken string) (*model.Session, error)
	Logout(ctx context.Context, accessToken string) error
}

// Client はクライアントインスタンスごとのリモートデータクライアント。
// アクセストークンを保持し、認証状態の変化をHub経由で購読者に通知する。
type Client struct {
	auth     AuthBackend
	profiles repository.ProfileRepository
	hub      *Hub

	mu          sync.RWMutex
	accessToken string
}

// NewClient はClientを生成する。accessTokenは復元対象のトークン（空文字列可）。
func NewClient(authBackend AuthBackend, profiles repository.ProfileRepository, accessToken string) *Client {
	return &Client{
		auth:        authBackend,
		profiles:    profiles,
		hub:         NewHub(),
		accessToken: accessToken,
	}
}

// AccessToken は現在保持しているアクセストークンを返す。
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *Client) setAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

// GetSession は保持しているアクセストークンからセッションを復元する。
// トークンがない、または無効な場合はnil, nilを返す。無効なトークンは破棄する。
func (c *Client) GetSession(ctx context.Context) (*model.Session, error) {
	token := c.AccessToken()
	if token == "" {
		return nil, nil
	}

	session, err := c.auth.RestoreSession(ctx, token)
	if errors.Is(err, ErrInvalidToken) {
		c.clearTokenIf(token)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	// 認証基盤がトークンを再発行した場合は差し替えてTOKEN_REFRESHEDを配信する
	if session.AccessToken != "" && session.AccessToken != token && c.replaceTokenIf(token, session.AccessToken) {
		c.publish(ctx, model.AuthEventTokenRefreshed, session)
	}
	return session, nil
}

// clearTokenIf はトークンが変わっていない場合のみ破棄する。
func (c *Client) clearTokenIf(token string) {
	c.replaceTokenIf(token, "")
}

// replaceTokenIf はトークンがoldのままの場合のみnextに差し替える。
func (c *Client) replaceTokenIf(old, next string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != old {
		return false
	}
	c.accessToken = next
	return true
}

// SignInWithPassword はメールアドレスとパスワードでサインインし、SIGNED_INを配信する。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	session, err := c.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.signedIn(ctx, session)
	return session, nil
}

// SignInWithOAuth はプロバイダーの同意画面URLを返す。
func (c *Client) SignInWithOAuth(_ context.Context, provider, state string) (string, error) {
	if provider != c.auth.ProviderName() {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	return c.auth.GetLoginURL(state), nil
}

// ExchangeCodeForSession はOAuthの認可コードをセッションに交換し、SIGNED_INを配信する。
func (c *Client) ExchangeCodeForSession(ctx context.Context, code string) (*model.Session, error) {
	session, err := c.auth.HandleCallback(ctx, code)
	if err != nil {
		return nil, err
	}
	c.signedIn(ctx, session)
	return session, nil
}

// SignUp はアカウントを作成する。セッションが発行された場合はSIGNED_INを配信する。
func (c *Client) SignUp(ctx context.Context, email, password string, meta model.SignUpMetadata) (*model.SignUpResult, error) {
	result, err := c.auth.SignUp(ctx, email, password, meta)
	if err != nil {
		return nil, err
	}
	if result.Session != nil {
		c.signedIn(ctx, result.Session)
	}
	return result, nil
}

// SignOut はセッションを失効させる。リモートの失効に失敗しても
// 保持しているトークンは破棄し、SIGNED_OUTを配信する。
func (c *Client) SignOut(ctx context.Context) error {
	token := c.AccessToken()
	c.clearTokenIf(token)

	var err error
	if token != "" {
		err = c.auth.Logout(ctx, token)
		if errors.Is(err, ErrInvalidToken) {
			err = nil
		}
	}

	c.hub.Publish(ctx, model.AuthEvent{Type: model.AuthEventSignedOut})
	if err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}

func (c *Client) signedIn(ctx context.Context, session *model.Session) {
	c.setAccessToken(session.AccessToken)
	c.publish(ctx, model.AuthEventSignedIn, session)
}

func (c *Client) publish(ctx context.Context, event model.AuthEventType, session *model.Session) {
	slog.Debug("auth state changed",
		slog.String("event", string(event)),
		slog.String("user_id", session.User.ID),
	)
	c.hub.Publish(ctx, model.AuthEvent{Type: event, Session: session})
}

// OnAuthStateChange は認証状態変更イベントを購読する。
func (c *Client) OnAuthStateChange(fn Listener) *Subscription {
	return c.hub.Subscribe(fn)
}

// Subscribers は認証状態変更イベントの購読者数を返す。
func (c *Client) Subscribers() int {
	return c.hub.Len()
}

// FetchProfile はusersテーブルから指定IDの行をちょうど1行取得する。
func (c *Client) FetchProfile(ctx context.Context, userID string) (*model.Profile, error) {
	if c.AccessToken() == "" {
		return nil, ErrNoSession
	}
	profile, err := c.profiles.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	return profile, nil
}

// UpdateProfileName はusersテーブルの姓名を更新し、USER_UPDATEDを配信する。
// 配信には現在のセッションを使う。セッションを復元できない場合は配信しない。
func (c *Client) UpdateProfileName(ctx context.Context, userID, firstName, lastName string) error {
	if c.AccessToken() == "" {
		return ErrNoSession
	}
	if err := c.profiles.UpdateName(ctx, userID, firstName, lastName); err != nil {
		return fmt.Errorf("failed to update profile name: %w", err)
	}

	session, err := c.GetSession(ctx)
	if err != nil || session == nil {
		slog.Debug("skipped user updated event", slog.String("user_id", userID))
		return nil
	}
	c.publish(ctx, model.AuthEventUserUpdated, session)
	return nil
}
