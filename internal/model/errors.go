// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"sort"
)

// APIError は統一エラーフォーマットを表す。
// 表示用メッセージに加え、リモートAPIのHTTPステータスと検証エラー詳細を保持する。
type APIError struct {
	Code     string              // エラーコード
	Message  string              // エラーメッセージ（UI表示用）
	Category string              // カテゴリ: auth, validation, api, system
	Action   string              // ユーザー向け対処方法
	Status   int                 // リモートAPIのHTTPステータス（ネットワーク呼び出し前のエラーは0）
	Details  map[string][]string // リモートAPIが返したフィールド別の検証エラー
	Err      error               // 元となったトランスポートエラー
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は元のトランスポートエラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// FirstDetail はフィールド名順で最初の検証エラーメッセージを返す。
func (e *APIError) FirstDetail() string {
	if e == nil || len(e.Details) == 0 {
		return ""
	}
	fields := make([]string, 0, len(e.Details))
	for field := range e.Details {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		for _, msg := range e.Details[field] {
			if msg != "" {
				return msg
			}
		}
	}
	return ""
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated  = "UNAUTHENTICATED"
	ErrCodeValidation       = "VALIDATION"
	ErrCodeMissingReference = "MISSING_REFERENCE"
	ErrCodeMissingData      = "MISSING_DATA"
	ErrCodeInvalidReaction  = "INVALID_REACTION"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAPI              = "API_ERROR"
)

// NewUnauthenticatedError はログインが必要な操作を未ログインで実行した場合のエラーを生成する。
func NewUnauthenticatedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  message,
		Category: "auth",
		Action:   "Inicia sesión y vuelve a intentarlo.",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Revisa los datos ingresados.",
	}
}

// NewMissingReferenceError は参照先IDが解決できない場合のエラーを生成する。
func NewMissingReferenceError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingReference,
		Message:  message,
		Category: "validation",
		Action:   "Recarga la página e inténtalo de nuevo.",
	}
}

// NewMissingDataError は操作に必要なデータが不足している場合のエラーを生成する。
func NewMissingDataError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingData,
		Message:  message,
		Category: "validation",
		Action:   "Recarga la página e inténtalo de nuevo.",
	}
}

// NewInvalidReactionError は未対応のリアクション種別が指定された場合のエラーを生成する。
func NewInvalidReactionError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidReaction,
		Message:  "Tipo de reaccion no admitido.",
		Category: "validation",
		Action:   "Elige una de las reacciones disponibles.",
	}
}

// NewNotFoundError はキャッシュとAPIのどちらにも対象が存在しない場合のエラーを生成する。
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  message,
		Category: "api",
		Action:   "Verifica el enlace o vuelve al listado.",
	}
}

// ToAPIError は任意のエラーを表示用メッセージ付きのAPIErrorに正規化する。
// サーバー提供のメッセージを優先し、なければfallbackを用いる。
// 引数のエラーは変更せず、常に新しい値を返す。
func ToAPIError(err error, fallback string) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		normalized := *apiErr
		if normalized.Message == "" {
			normalized.Message = fallback
		}
		if normalized.Category == "" {
			normalized.Category = "api"
		}
		return &normalized
	}

	return &APIError{
		Code:     ErrCodeAPI,
		Message:  fallback,
		Category: "system",
		Action:   "Inténtalo de nuevo en unos momentos.",
		Err:      err,
	}
}

// ToAPIErrorWithDetails はToAPIErrorと同様だが、検証エラー詳細があれば
// その最初のメッセージをサーバーメッセージより優先する。
func ToAPIErrorWithDetails(err error, fallback string) *APIError {
	normalized := ToAPIError(err, fallback)
	if normalized == nil {
		return nil
	}
	if detail := normalized.FirstDetail(); detail != "" {
		normalized.Message = detail
	}
	return normalized
}
