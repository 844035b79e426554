package model

// AuthEventType は認証状態変更イベントの種別。
type AuthEventType string

const (
	AuthEventSignedIn       AuthEventType = "SIGNED_IN"
	AuthEventSignedOut      AuthEventType = "SIGNED_OUT"
	AuthEventTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
	AuthEventUserUpdated    AuthEventType = "USER_UPDATED"
)

// AuthEvent は認証状態の変更を表す。サインアウト時はSessionがnilになる。
type AuthEvent struct {
	Type    AuthEventType
	Session *Session
}
