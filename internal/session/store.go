// Package session はクライアントインスタンスごとのセッション状態（ユーザーとプロフィール）を保持する。
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/storefront/internal/backend"
	"github.com/hitoshi/storefront/internal/model"
)

// Remote はStoreが利用するリモートデータクライアントの操作。backend.Clientが実装する。
type Remote interface {
	GetSession(ctx context.Context) (*model.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignInWithOAuth(ctx context.Context, provider, state string) (string, error)
	SignUp(ctx context.Context, email, password string, meta model.SignUpMetadata) (*model.SignUpResult, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(fn backend.Listener) *backend.Subscription
	FetchProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpdateProfileName(ctx context.Context, userID, firstName, lastName string) error
}

// Option はStoreの設定を変更する。
type Option func(*Store)

// WithOAuthProvider はSignInWithGoogleで使うプロバイダー名を設定する。
func WithOAuthProvider(provider string) Option {
	return func(s *Store) {
		s.oauthProvider = provider
	}
}

// Store はセッション状態を保持する。
// リモート呼び出し中はロックを保持しない。
type Store struct {
	remote        Remote
	oauthProvider string

	mu          sync.Mutex
	user        *model.AuthUser
	profile     *model.Profile
	loading     bool
	initialized bool
	initDone    chan struct{}
	sub         *backend.Subscription
	profileSeq  uint64
}

// NewStore はStoreを生成する。最初のInitializeが完了するまでLoadingはtrueを返す。
func NewStore(remote Remote, opts ...Option) *Store {
	s := &Store{
		remote:        remote,
		oauthProvider: "google",
		loading:       true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// User は現在のユーザーを返す。未ログインの場合はnil。
func (s *Store) User() *model.AuthUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Profile は現在のプロフィールを返す。未取得の場合はnil。
func (s *Store) Profile() *model.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Loading は初期化中かどうかを返す。
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// IsAdmin はプロフィールが管理者フラグを持つ場合にtrueを返す。
func (s *Store) IsAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile != nil && s.profile.IsAdmin
}

// Initialize は現在のセッションを復元し、プロフィールを取得して認証状態変更の購読を登録する。
// 実行中に呼ばれた場合は新たに初期化せず、実行中の初期化の完了を待つ。
func (s *Store) Initialize(ctx context.Context) error {
	return s.initialize(ctx, true)
}

// EnsureInitialized は未初期化の場合のみInitializeを実行する。
func (s *Store) EnsureInitialized(ctx context.Context) error {
	return s.initialize(ctx, false)
}

func (s *Store) initialize(ctx context.Context, force bool) error {
	s.mu.Lock()
	if ch := s.initDone; ch != nil {
		s.mu.Unlock()
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if !force && s.initialized {
		s.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	s.initDone = done
	s.loading = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loading = false
		s.initialized = true
		s.initDone = nil
		s.mu.Unlock()
		close(done)
	}()

	session, err := s.remote.GetSession(ctx)
	if err != nil {
		slog.Warn("failed to restore session", slog.String("error", err.Error()))
		session = nil
	}

	if session != nil {
		user := session.User
		s.setUser(&user)
		s.FetchProfile(ctx, user.ID)
		s.reconcileName(ctx, &user)
	} else {
		s.clear()
	}

	sub := s.remote.OnAuthStateChange(s.handleAuthEvent)
	s.mu.Lock()
	prev := s.sub
	s.sub = sub
	s.mu.Unlock()
	prev.Unsubscribe()

	return nil
}

// reconcileName はプロフィールの名が空で、IdPメタデータに表示名がある場合に姓名を補完する。
// 更新に失敗した場合は古いプロフィールのままにする。
func (s *Store) reconcileName(ctx context.Context, user *model.AuthUser) {
	profile := s.Profile()
	fullName := user.FullName()
	if profile == nil || profile.FirstName != "" || fullName == "" {
		return
	}

	firstName, lastName := model.SplitFullName(fullName)
	if err := s.remote.UpdateProfileName(ctx, user.ID, firstName, lastName); err != nil {
		slog.Debug("failed to reconcile profile name",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.FetchProfile(ctx, user.ID)
}

// FetchProfile はプロフィールを取得してローカルの値を上書きする。失敗した場合はnilになる。
// 後から発行された取得がある場合、この結果は反映しない。
func (s *Store) FetchProfile(ctx context.Context, userID string) {
	s.mu.Lock()
	s.profileSeq++
	seq := s.profileSeq
	s.mu.Unlock()

	profile, err := s.remote.FetchProfile(ctx, userID)
	if err != nil {
		slog.Debug("failed to fetch profile",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		profile = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.profileSeq {
		return
	}
	s.profile = profile
}

func (s *Store) handleAuthEvent(ctx context.Context, ev model.AuthEvent) {
	slog.Debug("session store received auth event", slog.String("event", string(ev.Type)))

	if ev.Session == nil {
		s.clear()
		return
	}
	user := ev.Session.User
	s.setUser(&user)
	s.FetchProfile(ctx, user.ID)
}

func (s *Store) setUser(user *model.AuthUser) {
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
}

// clear はユーザーとプロフィールを破棄する。実行中のプロフィール取得の結果も無効にする。
func (s *Store) clear() {
	s.mu.Lock()
	s.user = nil
	s.profile = nil
	s.profileSeq++
	s.mu.Unlock()
}

// SignIn はメールアドレスとパスワードでサインインする。
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	_, err := s.remote.SignInWithPassword(ctx, email, password)
	return err
}

// SignInWithGoogle はGoogleの同意画面URLを返す。
func (s *Store) SignInWithGoogle(ctx context.Context, state string) (string, error) {
	return s.remote.SignInWithOAuth(ctx, s.oauthProvider, state)
}

// SignUp はメタデータ付きでアカウントを作成する。
func (s *Store) SignUp(ctx context.Context, email, password string, meta model.SignUpMetadata) (*model.SignUpResult, error) {
	return s.remote.SignUp(ctx, email, password, meta)
}

// SignOut はサインアウトし、リモートの結果に関わらずユーザーとプロフィールを破棄する。
func (s *Store) SignOut(ctx context.Context) {
	if err := s.remote.SignOut(ctx); err != nil {
		slog.Warn("sign-out failed", slog.String("error", err.Error()))
	}
	s.clear()
}

// Close は認証状態変更の購読を解除する。
func (s *Store) Close() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	sub.Unsubscribe()
}
