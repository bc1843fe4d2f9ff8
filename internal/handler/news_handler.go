package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/pinkmuse/internal/identity"
	"github.com/hitoshi/pinkmuse/internal/middleware"
	"github.com/hitoshi/pinkmuse/internal/model"
	"github.com/hitoshi/pinkmuse/internal/news"
)

const (
	msgNewsFailed   = "No fue posible procesar la noticia."
	msgNewsNotFound = "Articulo no encontrado"
)

// NewsStore はニュースハンドラーが必要とするキャッシュ操作。
type NewsStore interface {
	Fetch(ctx context.Context) error
	EnsureFetched(ctx context.Context) error
	View() news.View
	Lookup(ctx context.Context, slug string) (news.Article, error)
	Create(ctx context.Context, payload json.RawMessage) (news.Article, bool, error)
	Update(ctx context.Context, currentTitle string, payload json.RawMessage) (news.Article, bool, error)
	Delete(ctx context.Context, title string) error
}

// ArticlePresenter は記事を表示用に整形する。
type ArticlePresenter interface {
	Item(a news.Article) (news.Item, bool)
	Detail(a news.Article) (news.Detail, bool)
}

// CommentClearer は記事のコメントスレッドを破棄する。
type CommentClearer interface {
	ClearComments(articleID string)
}

// NewsHandler はニュース記事のHTTPハンドラー。
type NewsHandler struct {
	store     NewsStore
	presenter ArticlePresenter
	comments  CommentClearer
}

// NewNewsHandler はNewsHandlerを生成する。commentsはnilでもよい。
func NewNewsHandler(store NewsStore, presenter ArticlePresenter, comments CommentClearer) *NewsHandler {
	return &NewsHandler{store: store, presenter: presenter, comments: comments}
}

// List は日付の降順に並べた記事一覧を返す。
// GET /api/noticias?refresh=1
func (h *NewsHandler) List(w http.ResponseWriter, r *http.Request) {
	if wantsRefresh(r) {
		_ = h.store.Fetch(r.Context())
	} else {
		_ = h.store.EnsureFetched(r.Context())
	}
	writeJSON(w, http.StatusOK, h.store.View())
}

// Get はURLエンコードされたタイトルで記事詳細を返す。
// GET /api/noticias/{key}
func (h *NewsHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.Lookup(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		middleware.WriteError(w, err, msgNewsFailed)
		return
	}
	detail, ok := h.presenter.Detail(a)
	if !ok {
		middleware.WriteError(w, model.NewNotFoundError(msgNewsNotFound), msgNewsFailed)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Create は記事を作成する。
// POST /api/noticias
func (h *NewsHandler) Create(w http.ResponseWriter, r *http.Request) {
	payload, ok := readPayload(w, r)
	if !ok {
		return
	}
	a, ok, err := h.store.Create(r.Context(), payload)
	if err != nil {
		middleware.WriteError(w, err, msgNewsFailed)
		return
	}
	h.writeArticle(w, http.StatusCreated, a, ok)
}

// Update は記事を更新する。コメントが無効になった記事のスレッドは破棄する。
// PUT /api/noticias/{key}
func (h *NewsHandler) Update(w http.ResponseWriter, r *http.Request) {
	payload, ok := readPayload(w, r)
	if !ok {
		return
	}
	a, ok, err := h.store.Update(r.Context(), identity.DecodeComponent(chi.URLParam(r, "key")), payload)
	if err != nil {
		middleware.WriteError(w, err, msgNewsFailed)
		return
	}
	if ok && !a.CommentsEnabled && h.comments != nil {
		h.comments.ClearComments(a.ID)
	}
	h.writeArticle(w, http.StatusOK, a, ok)
}

// Delete は記事を削除する。
// DELETE /api/noticias/{key}
func (h *NewsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), identity.DecodeComponent(chi.URLParam(r, "key"))); err != nil {
		middleware.WriteError(w, err, msgNewsFailed)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeArticle は記事を一覧用の形で返す。
// レスポンスに記事が含まれなかった場合は202と現在の一覧を返す。
func (h *NewsHandler) writeArticle(w http.ResponseWriter, status int, a news.Article, ok bool) {
	if ok {
		if item, presentable := h.presenter.Item(a); presentable {
			writeJSON(w, status, item)
			return
		}
	}
	writeJSON(w, http.StatusAccepted, h.store.View())
}
