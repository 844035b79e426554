package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/storefront/internal/model"
)

// pqUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pqUniqueViolation = "23505"

// PostgresCredentialRepo はPostgreSQLを使用した認証ユーザーリポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// FindByEmail はメールアドレスで認証情報を取得する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByEmail(ctx context.Context, email string) (*model.Credentials, error) {
	creds := &model.Credentials{}
	var rawMeta []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, raw_user_meta_data FROM auth_users WHERE lower(email) = lower($1)`,
		email,
	).Scan(&creds.UserID, &creds.Email, &creds.PasswordHash, &rawMeta)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credentials by email: %w", err)
	}

	if creds.Metadata, err = decodeMetadata(rawMeta); err != nil {
		return nil, err
	}
	return creds, nil
}

// FindAuthUserByID は指定IDの認証ユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindAuthUserByID(ctx context.Context, id string) (*model.AuthUser, error) {
	user := &model.AuthUser{}
	var rawMeta []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, raw_user_meta_data FROM auth_users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &rawMeta)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find auth user by ID: %w", err)
	}

	if user.UserMetadata, err = decodeMetadata(rawMeta); err != nil {
		return nil, err
	}
	return user, nil
}

// CreateWithProfile は認証ユーザーとusersレコードを同一トランザクションで作成する。
func (r *PostgresCredentialRepo) CreateWithProfile(ctx context.Context, creds *model.Credentials, profile *model.Profile) error {
	return r.create(ctx, creds, profile, nil)
}

// CreateWithIdentity は認証ユーザー、usersレコード、identityを同一トランザクションで作成する。
func (r *PostgresCredentialRepo) CreateWithIdentity(ctx context.Context, creds *model.Credentials, profile *model.Profile, identity *model.Identity) error {
	return r.create(ctx, creds, profile, identity)
}

func (r *PostgresCredentialRepo) create(ctx context.Context, creds *model.Credentials, profile *model.Profile, identity *model.Identity) error {
	rawMeta, err := json.Marshal(creds.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode user metadata: %w", err)
	}
	if creds.Metadata == nil {
		rawMeta = []byte("{}")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO auth_users (id, email, password_hash, raw_user_meta_data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		creds.UserID, creds.Email, creds.PasswordHash, rawMeta, profile.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert auth user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, last_name, phone, is_admin, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, false, $6, $7)`,
		profile.ID, profile.Email, profile.FirstName, profile.LastName, profile.Phone, profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user profile: %w", err)
	}

	if identity != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO auth_identities (id, user_id, provider, provider_user_id, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert identity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// decodeMetadata はJSONBのメタデータをマップに変換する。
func decodeMetadata(raw []byte) (map[string]any, error) {
	meta := map[string]any{}
	if len(raw) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode user metadata: %w", err)
	}
	return meta, nil
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
