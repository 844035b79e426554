package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, cart, catalog, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken          = "EMAIL_TAKEN"
	ErrCodeInvalidSignUp       = "INVALID_SIGNUP"
	ErrCodeUnsupportedProvider = "UNSUPPORTED_PROVIDER"
	ErrCodeOAuthFailed         = "OAUTH_FAILED"
	ErrCodeEmailNotVerified    = "EMAIL_NOT_VERIFIED"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeProductNotFound     = "PRODUCT_NOT_FOUND"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeCSRFInvalid         = "CSRF_INVALID"
	ErrCodeRateLimited         = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// CatalogUnavailableMessage はカタログ取得失敗時にUIへ表示するメッセージ。
const CatalogUnavailableMessage = "Impossible de charger les produits."

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Email ou mot de passe incorrect.",
		Category: "auth",
		Action:   "Vérifiez vos identifiants et réessayez.",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "Un compte existe déjà avec cette adresse email.",
		Category: "auth",
		Action:   "Connectez-vous ou utilisez une autre adresse email.",
	}
}

// NewInvalidSignUpError はアカウント作成の入力不備エラーを生成する。
func NewInvalidSignUpError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSignUp,
		Message:  fmt.Sprintf("Inscription invalide : %s", reason),
		Category: "validation",
		Action:   "Complétez les champs obligatoires et réessayez.",
	}
}

// NewUnsupportedProviderError は未対応のOAuthプロバイダーエラーを生成する。
func NewUnsupportedProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedProvider,
		Message:  fmt.Sprintf("Fournisseur non pris en charge : %s", provider),
		Category: "auth",
		Action:   "Utilisez la connexion Google ou par email.",
	}
}

// NewOAuthFailedError はOAuthフロー失敗エラーを生成する。
func NewOAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthFailed,
		Message:  "La connexion avec Google a échoué.",
		Category: "auth",
		Action:   "Réessayez dans quelques instants.",
	}
}

// NewEmailNotVerifiedError はOAuthプロバイダー側でメールアドレスが未確認のエラーを生成する。
func NewEmailNotVerifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotVerified,
		Message:  "L'adresse email de ce compte Google n'est pas vérifiée.",
		Category: "auth",
		Action:   "Vérifiez votre adresse auprès de Google ou connectez-vous par email.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Vous devez être connecté.",
		Category: "auth",
		Action:   "Connectez-vous puis réessayez.",
	}
}

// NewProductNotFoundError は商品未検出エラーを生成する。
func NewProductNotFoundError(productID string) *APIError {
	return &APIError{
		Code:     ErrCodeProductNotFound,
		Message:  fmt.Sprintf("Produit introuvable : %s", productID),
		Category: "catalog",
		Action:   "Actualisez le catalogue et réessayez.",
	}
}

// NewInvalidRequestError はリクエスト形式不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Requête invalide : %s", reason),
		Category: "validation",
		Action:   "Vérifiez les données envoyées.",
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "Jeton de sécurité invalide.",
		Category: "auth",
		Action:   "Rechargez la page puis réessayez.",
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Trop de tentatives.",
		Category: "system",
		Action:   "Patientez quelques instants avant de réessayer.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Une erreur interne est survenue.",
		Category: "system",
		Action:   "Réessayez dans quelques instants.",
	}
}
