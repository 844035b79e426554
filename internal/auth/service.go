// Package auth はパスワード認証、OAuth認証フロー、セッション発行を提供する。
// ストアフロント側からはbackend.Client経由で外部の認証基盤として扱われる。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/security"
)

var (
	// ErrInvalidCredentials はメールアドレスまたはパスワードが一致しないことを示す。
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrEmailTaken はメールアドレスが既に使用されていることを示す。
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidSignUp はアカウント作成の入力が不正であることを示す。
	ErrInvalidSignUp = errors.New("invalid sign-up request")
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// Name はプロバイダー名（"google" 等）を返す。
	Name() string
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int    // セッション有効期間（秒）
	TokenSecret   []byte // アクセストークンの署名鍵
	TokenIssuer   string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	credRepo    repository.CredentialRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	sanitizer   security.TextSanitizer
	tokens      *TokenIssuer
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	credRepo repository.CredentialRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	sanitizer security.TextSanitizer,
	config ServiceConfig,
) *Service {
	if config.TokenIssuer == "" {
		config.TokenIssuer = "storefront"
	}
	return &Service{
		oauth:       oauth,
		credRepo:    credRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		sanitizer:   sanitizer,
		tokens:      NewTokenIssuer(config.TokenSecret, config.TokenIssuer),
		config:      config,
		now:         time.Now,
	}
}

// ProviderName はOAuthプロバイダー名を返す。
func (s *Service) ProviderName() string {
	return s.oauth.Name()
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// SignInWithPassword はメールアドレスとパスワードで認証し、セッションを発行する。
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	creds, err := s.credRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find credentials: %w", err)
	}
	if creds == nil {
		return nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(creds.PasswordHash, password); err != nil {
		slog.Info("password sign-in rejected", slog.String("user_id", creds.UserID))
		return nil, ErrInvalidCredentials
	}

	user := model.AuthUser{ID: creds.UserID, Email: creds.Email, UserMetadata: creds.Metadata}
	session, err := s.createSession(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user signed in", slog.String("user_id", user.ID), slog.String("method", "password"))
	return session, nil
}

// SignUp はアカウントを作成し、メタデータ（姓名・電話番号）をusersレコードに反映してセッションを発行する。
func (s *Service) SignUp(ctx context.Context, email, password string, meta model.SignUpMetadata) (*model.SignUpResult, error) {
	email = normalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidSignUp)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidSignUp, MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return nil, fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidSignUp, MaxPasswordLength)
	}

	meta = model.SignUpMetadata{
		FirstName: s.sanitizer.Sanitize(meta.FirstName),
		LastName:  s.sanitizer.Sanitize(meta.LastName),
		Phone:     s.sanitizer.Sanitize(meta.Phone),
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	userID := uuid.New().String()
	creds := &model.Credentials{
		UserID:       userID,
		Email:        email,
		PasswordHash: hash,
		Metadata:     meta.AsMap(),
	}
	profile := &model.Profile{
		ID:        userID,
		Email:     email,
		FirstName: meta.FirstName,
		LastName:  meta.LastName,
		Phone:     meta.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.credRepo.CreateWithProfile(ctx, creds, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	user := model.AuthUser{ID: userID, Email: email, UserMetadata: creds.Metadata}
	session, err := s.createSession(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("new user signed up", slog.String("user_id", userID))
	return &model.SignUpResult{User: user, Session: session}, nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合は認証ユーザー、usersレコード、identityを同時に作成する。
// usersレコードの姓名は空のまま作成し、表示名はメタデータのfull_nameとして保持する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var user *model.AuthUser
	if identity != nil {
		user, err = s.credRepo.FindAuthUserByID(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("identity %s references a missing user", identity.ID)
		}
		slog.Info("existing user logged in",
			slog.String("user_id", user.ID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		user, err = s.createOAuthUser(ctx, userInfo)
		if err != nil {
			return nil, err
		}
	}

	session, err := s.createSession(ctx, *user)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

func (s *Service) createOAuthUser(ctx context.Context, info *OAuthUserInfo) (*model.AuthUser, error) {
	now := s.now()
	userID := uuid.New().String()
	email := normalizeEmail(info.Email)

	metadata := map[string]any{
		"full_name": s.sanitizer.Sanitize(info.Name),
		"email":     email,
		"provider":  info.Provider,
	}
	if info.AvatarURL != "" {
		metadata["avatar_url"] = info.AvatarURL
	}

	creds := &model.Credentials{UserID: userID, Email: email, Metadata: metadata}
	profile := &model.Profile{ID: userID, Email: email, CreatedAt: now, UpdatedAt: now}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         userID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	if err := s.credRepo.CreateWithIdentity(ctx, creds, profile, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", userID),
		slog.String("provider", info.Provider),
	)
	return &model.AuthUser{ID: userID, Email: email, UserMetadata: metadata}, nil
}

// RestoreSession はアクセストークンを検証し、有効なセッションを復元する。
// 署名不正、期限切れ、失効済みのいずれの場合もErrInvalidTokenを返す。
func (s *Service) RestoreSession(ctx context.Context, accessToken string) (*model.Session, error) {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return nil, err
	}

	record, err := s.sessionRepo.FindActiveByID(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if record == nil || record.UserID != claims.Subject {
		return nil, ErrInvalidToken
	}

	user, err := s.credRepo.FindAuthUserByID(ctx, record.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidToken
	}

	// トークンのクレームが現在のユーザー情報と異なる場合は同じセッションで再発行する
	token := accessToken
	if claimsStale(claims, user) {
		token, err = s.tokens.Issue(record.ID, user.ID, user.Email, user.UserMetadata, s.now(), record.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to reissue access token: %w", err)
		}
		slog.Info("access token reissued", slog.String("user_id", user.ID))
	}

	return &model.Session{
		ID:          record.ID,
		AccessToken: token,
		ExpiresAt:   record.ExpiresAt,
		User:        *user,
	}, nil
}

// claimsStale はトークンのメールアドレスまたはメタデータがユーザー情報と一致しない場合にtrueを返す。
// 空のメタデータとnilは同じとみなす。
func claimsStale(claims *AccessClaims, user *model.AuthUser) bool {
	if claims.Email != user.Email {
		return true
	}
	if len(claims.UserMetadata) == 0 && len(user.UserMetadata) == 0 {
		return false
	}
	return !reflect.DeepEqual(claims.UserMetadata, user.UserMetadata)
}

// Logout はアクセストークンに対応するセッションを失効させる。
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return err
	}

	if err := s.sessionRepo.Revoke(ctx, claims.ID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	slog.Info("user logged out", slog.String("user_id", claims.Subject))
	return nil
}

// createSession はセッションを永続化し、アクセストークンを発行する。
func (s *Service) createSession(ctx context.Context, user model.AuthUser) (*model.Session, error) {
	now := s.now()
	record := &repository.SessionRecord{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	token, err := s.tokens.Issue(record.ID, user.ID, user.Email, user.UserMetadata, now, record.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	if err := s.sessionRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return &model.Session{
		ID:          record.ID,
		AccessToken: token,
		ExpiresAt:   record.ExpiresAt,
		User:        user,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
