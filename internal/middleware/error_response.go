package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/pinkmuse/internal/model"
)

// ErrorResponseBody はゲートウェイのエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法、検証エラーの詳細を含む。
type ErrorResponseBody struct {
	Code     string              `json:"code"`
	Message  string              `json:"message"`
	Category string              `json:"category"`
	Action   string              `json:"action"`
	Errors   map[string][]string `json:"errors,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Errors:   apiErr.Details,
	})
}

// WriteError はエラーを *model.APIError に正規化し、コードに応じたステータスで書き込む。
// APIErrorでないエラーはfallbackをメッセージとする。
func WriteError(w http.ResponseWriter, err error, fallback string) {
	apiErr := model.ToAPIError(err, fallback)
	WriteErrorResponse(w, StatusFor(apiErr), apiErr)
}

// StatusFor はエラーコードからゲートウェイが返すHTTPステータスを決める。
// リモートAPIのエラーは4xxであればそのまま、それ以外は502とする。
func StatusFor(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case model.ErrCodeMissingReference, model.ErrCodeMissingData, model.ErrCodeInvalidReaction:
		return http.StatusBadRequest
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	}
	if apiErr.Status >= 400 && apiErr.Status < 500 {
		return apiErr.Status
	}
	return http.StatusBadGateway
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "Ocurrió un error interno.",
		Category: "system",
		Action:   "Inténtalo de nuevo en unos momentos.",
	})
}
