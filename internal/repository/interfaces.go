// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

var (
	// ErrNotFound は単一行の取得で行が存在しなかったことを示す。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail はメールアドレスが既に登録済みであることを示す。
	ErrDuplicateEmail = errors.New("email already registered")
)

// CredentialRepository は認証ユーザー（auth_users）の永続化インターフェース。
type CredentialRepository interface {
	// FindByEmail はメールアドレスで認証情報を取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Credentials, error)

	// FindAuthUserByID は指定IDの認証ユーザーを取得する。見つからない場合はnilを返す。
	FindAuthUserByID(ctx context.Context, id string) (*model.AuthUser, error)

	// CreateWithProfile は認証ユーザーとusersレコードを同一トランザクションで作成する。
	// メールアドレスが重複する場合はErrDuplicateEmailを返す。
	CreateWithProfile(ctx context.Context, creds *model.Credentials, profile *model.Profile) error

	// CreateWithIdentity は認証ユーザー、usersレコード、identityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, creds *model.Credentials, profile *model.Profile, identity *model.Identity) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRecord はauth_sessionsテーブルの1行を表す。
type SessionRecord struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionRepository は認証セッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *SessionRecord) error
	// FindActiveByID は期限内かつ未失効のセッションを取得する。該当しない場合はnilを返す。
	FindActiveByID(ctx context.Context, id string) (*SessionRecord, error)
	// Revoke はセッションを失効させる。既に失効済みでもエラーにしない。
	Revoke(ctx context.Context, id string) error
}

// ProfileRepository はusersテーブルの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールをちょうど1行取得する。存在しない場合はErrNotFoundを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// UpdateName は姓名を更新する。対象行が存在しない場合はErrNotFoundを返す。
	UpdateName(ctx context.Context, id, firstName, lastName string) error
}

// ProductRepository はproductsテーブルの永続化インターフェース。
type ProductRepository interface {
	// ListOrderedByName は全商品を名前の昇順で返す。
	ListOrderedByName(ctx context.Context) ([]*model.Product, error)

	// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Product, error)
}
