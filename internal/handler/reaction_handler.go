package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/pinkmuse/internal/middleware"
	"github.com/hitoshi/pinkmuse/internal/model"
	"github.com/hitoshi/pinkmuse/internal/reaction"
)

const msgReactionFailed = "No fue posible actualizar la reaccion."

// ReactionAggregator はリアクションハンドラーが必要とする集計操作。
type ReactionAggregator interface {
	GetSummary(refType, refID string) reaction.State
	FetchSummary(ctx context.Context, refType, refID string, opts reaction.FetchOptions) (reaction.Summary, error)
	ToggleReaction(ctx context.Context, refType, refID, kind string) (reaction.ToggleResult, error)
	IsProcessing(refType, refID string) bool
	CanReact() bool
}

// ReactionHandler はリアクションのHTTPハンドラー。
type ReactionHandler struct {
	aggregator ReactionAggregator
}

// NewReactionHandler はReactionHandlerを生成する。
func NewReactionHandler(aggregator ReactionAggregator) *ReactionHandler {
	return &ReactionHandler{aggregator: aggregator}
}

// reactionStateResponse は集計とUIが操作の可否を判断するためのフラグ。
type reactionStateResponse struct {
	reaction.State
	Processing bool `json:"processing"`
	CanReact   bool `json:"canReact"`
}

// toggleRequest はPOSTのリクエストボディ。
type toggleRequest struct {
	Tipo string `json:"tipo"`
}

func (h *ReactionHandler) stateResponse(refType, refID string) reactionStateResponse {
	return reactionStateResponse{
		State:      h.aggregator.GetSummary(refType, refID),
		Processing: h.aggregator.IsProcessing(refType, refID),
		CanReact:   h.aggregator.CanReact(),
	}
}

// Get は参照先の集計を返す。未取得またはrefresh指定時はサーバーから取得する。
// 取得の失敗は集計のerrorに記録され、以前の集計を返す。
// GET /api/reacciones/{type}/{id}?refresh=1
func (h *ReactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	refType, refID := chi.URLParam(r, "type"), chi.URLParam(r, "id")
	if reaction.Key(refType, refID) == "" {
		middleware.WriteError(w, model.NewMissingReferenceError("Referencia de reaccion invalida."), msgReactionFailed)
		return
	}
	force := wantsRefresh(r)
	if force || h.aggregator.GetSummary(refType, refID).LastFetchedAt.IsZero() {
		_, _ = h.aggregator.FetchSummary(r.Context(), refType, refID, reaction.FetchOptions{Force: force})
	}
	writeJSON(w, http.StatusOK, h.stateResponse(refType, refID))
}

// Toggle は現在のユーザーのリアクションをトグルする。
// 同じ参照先のトグルが送信中の場合は409を返す。
// POST /api/reacciones/{type}/{id}
func (h *ReactionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	refType, refID := chi.URLParam(r, "type"), chi.URLParam(r, "id")
	var req toggleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if h.aggregator.IsProcessing(refType, refID) {
		middleware.WriteErrorResponse(w, http.StatusConflict, &model.APIError{
			Code:     "TOGGLE_IN_PROGRESS",
			Message:  "Tu reacción anterior aún se está procesando.",
			Category: "validation",
			Action:   "Espera un momento e inténtalo de nuevo.",
		})
		return
	}

	result, err := h.aggregator.ToggleReaction(r.Context(), refType, refID, req.Tipo)
	if err != nil {
		middleware.WriteError(w, err, msgReactionFailed)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
