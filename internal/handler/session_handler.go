package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/pinkmuse/internal/middleware"
	"github.com/hitoshi/pinkmuse/internal/session"
)

const msgProfileFailed = "No se pudo cargar tu perfil."

// SessionManager はセッションハンドラーが必要とするセッション操作。
type SessionManager interface {
	// Refresh はプロフィールを再取得する。
	Refresh(ctx context.Context) (session.Identity, bool, error)
	// Logout はログアウトを通知し、ローカルの認証情報を破棄する。
	Logout(ctx context.Context)
	Session() *session.Session
}

// SessionHandler は現在のセッションのHTTPハンドラー。
type SessionHandler struct {
	manager SessionManager
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(manager SessionManager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

type sessionResponse struct {
	Authenticated bool              `json:"authenticated"`
	User          *session.Identity `json:"user"`
}

func newSessionResponse(ident session.Identity, ok bool) sessionResponse {
	if !ok {
		return sessionResponse{}
	}
	return sessionResponse{Authenticated: true, User: &ident}
}

// Get は現在の識別情報を返す。
// GET /api/sesion
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSessionResponse(h.manager.Session().Current()))
}

// Refresh はプロフィールを再取得して識別情報を返す。
// POST /api/sesion/refresh
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ident, ok, err := h.manager.Refresh(r.Context())
	if err != nil {
		middleware.WriteError(w, err, msgProfileFailed)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(ident, ok))
}

// Logout はログアウトする。リモートの結果にかかわらず204を返す。
// POST /api/sesion/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.manager.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
