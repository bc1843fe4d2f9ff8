package middleware

import (
	"net/http"

	"github.com/hitoshi/pinkmuse/internal/model"
)

// NewCORSMiddleware はローカルUIのオリジンに対するCORSミドルウェアを返す。
//
// Originヘッダーが許可オリジンと一致する場合（またはOriginなしの同一オリジン・CLIからの
// 呼び出し）のみCORSヘッダーを付与する。ゲートウェイはセッションの資格情報で上流APIを
// 呼び出すため、他オリジンからのプリフライトは403で拒否する。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if origin != "" && origin != allowedOrigin {
				if r.Method == http.MethodOptions {
					WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
						Code:     "ORIGIN_NOT_ALLOWED",
						Message:  "Origen no permitido.",
						Category: "auth",
					})
					return
				}
				// 単純リクエストはヘッダーなしで通し、ブラウザ側で読み取りを拒否させる
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+csrfHeaderName)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
