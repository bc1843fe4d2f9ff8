// Package handler はローカル同期ゲートウェイのHTTPハンドラーを提供する。
// 各ハンドラーはキャッシュの表示用スナップショットを返し、書き込み操作をキャッシュへ委譲する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/pinkmuse/internal/middleware"
	"github.com/hitoshi/pinkmuse/internal/model"
)

// maxBodyBytes はリクエストボディの上限。
const maxBodyBytes = 1 << 20

// writeJSON はvをJSONとして書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// readPayload はボディをJSONとして読み取る。空のボディは "{}" として扱う。
func readPayload(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeInvalidBody(w)
		return nil, false
	}
	if len(body) == 0 {
		return json.RawMessage("{}"), true
	}
	if !json.Valid(body) {
		writeInvalidBody(w)
		return nil, false
	}
	return json.RawMessage(body), true
}

// decodeBody はボディをvへデコードする。
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeInvalidBody(w)
		return false
	}
	return true
}

func writeInvalidBody(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_BODY",
		Message:  "El cuerpo de la solicitud no es un JSON válido.",
		Category: "validation",
		Action:   "Revisa los datos enviados.",
	})
}

// wantsRefresh は ?refresh=1 または ?refresh=true で強制再取得が要求されたかを返す。
func wantsRefresh(r *http.Request) bool {
	switch r.URL.Query().Get("refresh") {
	case "1", "true":
		return true
	}
	return false
}

// errorCode はエラーが *model.APIError であればそのコードを返す。
func errorCode(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
