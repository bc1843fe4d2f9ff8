package handler

import "net/http"

// Health はゲートウェイの死活確認に使う。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
