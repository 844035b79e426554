// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// AuthUser は認証バックエンドが保持するユーザーIDと生のプロバイダーメタデータを表す。
type AuthUser struct {
	ID           string
	Email        string
	UserMetadata map[string]any
}

// FullName はプロバイダーメタデータの full_name を返す。存在しない場合は空文字列を返す。
func (u *AuthUser) FullName() string {
	if u == nil || u.UserMetadata == nil {
		return ""
	}
	name, _ := u.UserMetadata["full_name"].(string)
	return strings.TrimSpace(name)
}

// Session はクライアントインスタンスに紐付くログインセッションを表す。
type Session struct {
	ID          string
	AccessToken string
	ExpiresAt   time.Time
	User        AuthUser
}

// Profile はusersテーブルのアプリケーション固有ユーザーレコードを表す。
// IDはSession.User.IDと一致する。
type Profile struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Phone     string
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Credentials はパスワード認証用に保存された認証情報を表す。
type Credentials struct {
	UserID       string
	Email        string
	PasswordHash string
	Metadata     map[string]any
}

// SignUpMetadata はアカウント作成時に付与するメタデータ。
type SignUpMetadata struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// AsMap はメタデータをユーザーメタデータ形式に変換する。
func (m SignUpMetadata) AsMap() map[string]any {
	return map[string]any{
		"first_name": m.FirstName,
		"last_name":  m.LastName,
		"phone":      m.Phone,
	}
}

// SignUpResult はアカウント作成の結果。
type SignUpResult struct {
	User    AuthUser
	Session *Session
}

// SplitFullName は表示名を最初の空白の連続で姓名に分割する。
// 空白がない場合は全体を名とし、姓は空文字列とする。
func SplitFullName(fullName string) (firstName, lastName string) {
	fullName = strings.TrimSpace(fullName)
	idx := strings.IndexAny(fullName, " \t\n\r")
	if idx < 0 {
		return fullName, ""
	}
	return fullName[:idx], strings.TrimSpace(fullName[idx:])
}
