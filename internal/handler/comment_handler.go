package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/pinkmuse/internal/comment"
	"github.com/hitoshi/pinkmuse/internal/middleware"
	"github.com/hitoshi/pinkmuse/internal/model"
)

const msgCommentFailed = "No fue posible procesar el comentario."

// CommentStore はコメントハンドラーが必要とするスレッド操作。
type CommentStore interface {
	GetState(articleID string) comment.View
	FetchComments(ctx context.Context, articleID string, force bool) ([]comment.Comment, error)
	CreateComment(ctx context.Context, articleID string, in comment.CreateInput) (comment.Comment, bool, error)
	DeleteComment(ctx context.Context, articleID, commentID string) error
	IsDeletingComment(commentID string) bool
}

// CommentHandler は記事のコメントスレッドのHTTPハンドラー。
type CommentHandler struct {
	store CommentStore
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(store CommentStore) *CommentHandler {
	return &CommentHandler{store: store}
}

// List は記事のコメントスレッドを返す。
// 取得済みのスレッドはrefresh指定がない限り再取得しない。
// GET /api/noticias/{key}/comentarios?refresh=1
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	articleID := chi.URLParam(r, "key")
	if _, err := h.store.FetchComments(r.Context(), articleID, wantsRefresh(r)); err != nil {
		// 取得失敗はスレッドのerrorに記録されるため、参照不足のみエラーで返す
		if errorCode(err) == model.ErrCodeMissingReference {
			middleware.WriteError(w, err, msgCommentFailed)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.store.GetState(articleID))
}

// Create はコメントを投稿する。
// POST /api/noticias/{key}/comentarios
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	articleID := chi.URLParam(r, "key")
	var in comment.CreateInput
	if !decodeBody(w, r, &in) {
		return
	}
	created, ok, err := h.store.CreateComment(r.Context(), articleID, in)
	if err != nil {
		middleware.WriteError(w, err, msgCommentFailed)
		return
	}
	if !ok {
		writeJSON(w, http.StatusAccepted, h.store.GetState(articleID))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Delete はコメントを削除する。同じコメントの削除が送信中の場合は409を返す。
// DELETE /api/noticias/{key}/comentarios/{commentID}
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	articleID, commentID := chi.URLParam(r, "key"), chi.URLParam(r, "commentID")
	if h.store.IsDeletingComment(commentID) {
		middleware.WriteErrorResponse(w, http.StatusConflict, &model.APIError{
			Code:     "DELETE_IN_PROGRESS",
			Message:  "El comentario ya se está eliminando.",
			Category: "validation",
			Action:   "Espera un momento.",
		})
		return
	}
	if err := h.store.DeleteComment(r.Context(), articleID, commentID); err != nil {
		middleware.WriteError(w, err, msgCommentFailed)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
