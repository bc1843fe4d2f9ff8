package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/pinkmuse/internal/event"
	"github.com/hitoshi/pinkmuse/internal/identity"
	"github.com/hitoshi/pinkmuse/internal/middleware"
)

const msgEventFailed = "No pudimos procesar el evento."

// EventStore はイベントハンドラーが必要とするキャッシュ操作。
type EventStore interface {
	Fetch(ctx context.Context) error
	EnsureFetched(ctx context.Context) error
	// View は「今後／過去」に分割した表示用スナップショットを返す。
	View() event.View
	Lookup(ctx context.Context, slug string) (event.Event, error)
	Create(ctx context.Context, payload json.RawMessage) (event.Event, error)
	Update(ctx context.Context, name string, payload json.RawMessage) (event.Event, error)
	Delete(ctx context.Context, name string) error
}

// EventHandler はイベントのHTTPハンドラー。
type EventHandler struct {
	store EventStore
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(store EventStore) *EventHandler {
	return &EventHandler{store: store}
}

// List はイベント一覧を返す。取得の失敗はビューのerrorに記録される。
// GET /api/eventos?refresh=1
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if wantsRefresh(r) {
		_ = h.store.Fetch(r.Context())
	} else {
		_ = h.store.EnsureFetched(r.Context())
	}
	writeJSON(w, http.StatusOK, h.store.View())
}

// Get はURLエンコードされた名前でイベントを返す。
// GET /api/eventos/{slug}
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	ev, err := h.store.Lookup(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		middleware.WriteError(w, err, msgEventFailed)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// Create はイベントを作成する。
// レスポンスにイベントが含まれず一覧を再取得した場合は202と一覧を返す。
// POST /api/eventos
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	payload, ok := readPayload(w, r)
	if !ok {
		return
	}
	ev, err := h.store.Create(r.Context(), payload)
	if err != nil {
		middleware.WriteError(w, err, msgEventFailed)
		return
	}
	if ev.Raw == nil {
		writeJSON(w, http.StatusAccepted, h.store.View())
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// Update はイベントを更新する。
// PUT /api/eventos/{slug}
func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	payload, ok := readPayload(w, r)
	if !ok {
		return
	}
	ev, err := h.store.Update(r.Context(), identity.DecodeComponent(chi.URLParam(r, "slug")), payload)
	if err != nil {
		middleware.WriteError(w, err, msgEventFailed)
		return
	}
	if ev.Raw == nil {
		writeJSON(w, http.StatusAccepted, h.store.View())
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// Delete はイベントを削除する。
// DELETE /api/eventos/{slug}
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), identity.DecodeComponent(chi.URLParam(r, "slug"))); err != nil {
		middleware.WriteError(w, err, msgEventFailed)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
