package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/storefront/internal/model"
)

const findIdentityQuery = `
SELECT i.id, i.user_id, i.provider, i.provider_user_id, i.created_at
FROM auth_identities i
JOIN auth_users u ON u.id = i.user_id
WHERE i.provider = $1 AND i.provider_user_id = $2`

// PostgresIdentityRepo はOAuthプロバイダーとの紐付け（auth_identities）を扱う。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// FindByProviderAndProviderUserID はプロバイダー名（小文字化して比較）とプロバイダー側のユーザーIDで
// 紐付けを検索する。認証ユーザーが削除済みの紐付けは見つからない扱いとし、nilを返す。
func (r *PostgresIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	provider = strings.ToLower(provider)

	var identity model.Identity
	err := r.db.QueryRowContext(ctx, findIdentityQuery, provider, providerUserID).
		Scan(&identity.ID, &identity.UserID, &identity.Provider, &identity.ProviderUserID, &identity.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to find %s identity: %w", provider, err)
	}
	return &identity, nil
}

var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
