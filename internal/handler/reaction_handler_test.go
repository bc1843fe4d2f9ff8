package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/pinkmuse/internal/model"
	"github.com/hitoshi/pinkmuse/internal/reaction"
)

func reactionRequest(method, body, refType, refID string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, "/", nil)
	} else {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
	}
	return withChiURLParams(req, "type", refType, "id", refID)
}

func TestReactionHandler_Get_FetchesWhenNotLoaded(t *testing.T) {
	m := &mockReactions{states: map[string]reaction.State{}, canReact: true}
	h := NewReactionHandler(m)

	w := httptest.NewRecorder()
	h.Get(w, reactionRequest(http.MethodGet, "", reaction.TypeNews, "n1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(m.fetchOpts) != 1 || m.fetchOpts[0].Force {
		t.Errorf("fetchOpts = %+v, want one non-forced fetch", m.fetchOpts)
	}
	var resp struct {
		CanReact   bool `json:"canReact"`
		Processing bool `json:"processing"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.CanReact || resp.Processing {
		t.Errorf("resp = %+v", resp)
	}
}

func TestReactionHandler_Get_UsesCachedSummary(t *testing.T) {
	m := &mockReactions{states: map[string]reaction.State{
		reaction.Key(reaction.TypeNews, "n1"): {LastFetchedAt: time.Now()},
	}}
	h := NewReactionHandler(m)

	h.Get(httptest.NewRecorder(), reactionRequest(http.MethodGet, "", reaction.TypeNews, "n1"))
	if len(m.fetchOpts) != 0 {
		t.Errorf("取得済みなのに再取得した: %+v", m.fetchOpts)
	}

	req := httptest.NewRequest(http.MethodGet, "/?refresh=1", nil)
	h.Get(httptest.NewRecorder(), withChiURLParams(req, "type", reaction.TypeNews, "id", "n1"))
	if len(m.fetchOpts) != 1 || !m.fetchOpts[0].Force {
		t.Errorf("fetchOpts = %+v, want one forced fetch", m.fetchOpts)
	}
}

func TestReactionHandler_Get_InvalidReference(t *testing.T) {
	h := NewReactionHandler(&mockReactions{})

	w := httptest.NewRecorder()
	h.Get(w, reactionRequest(http.MethodGet, "", reaction.TypeNews, ""))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestReactionHandler_Toggle(t *testing.T) {
	var gotKind string
	m := &mockReactions{
		toggleFn: func(ctx context.Context, refType, refID, kind string) (reaction.ToggleResult, error) {
			gotKind = kind
			return reaction.ToggleResult{Message: "Reacción registrada"}, nil
		},
	}
	h := NewReactionHandler(m)

	w := httptest.NewRecorder()
	h.Toggle(w, reactionRequest(http.MethodPost, `{"tipo":"like"}`, reaction.TypeComment, "c1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotKind != "like" {
		t.Errorf("kind = %q, want like", gotKind)
	}
	if !strings.Contains(w.Body.String(), "Reacción registrada") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestReactionHandler_Toggle_Errors(t *testing.T) {
	tests := []struct {
		name       string
		processing bool
		err        error
		wantStatus int
		wantCode   string
	}{
		{"送信中", true, nil, http.StatusConflict, "TOGGLE_IN_PROGRESS"},
		{"未ログイン", false, model.NewUnauthenticatedError("Debes iniciar sesion para reaccionar."), http.StatusUnauthorized, model.ErrCodeUnauthenticated},
		{"未知の種類", false, model.NewInvalidReactionError(), http.StatusBadRequest, model.ErrCodeInvalidReaction},
		{"ロールバック", false, &model.APIError{Code: model.ErrCodeAPI, Message: "No fue posible actualizar la reaccion."}, http.StatusBadGateway, model.ErrCodeAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			m := &mockReactions{
				processing: tt.processing,
				toggleFn: func(ctx context.Context, refType, refID, kind string) (reaction.ToggleResult, error) {
					called = true
					return reaction.ToggleResult{}, tt.err
				},
			}
			h := NewReactionHandler(m)

			w := httptest.NewRecorder()
			h.Toggle(w, reactionRequest(http.MethodPost, `{"tipo":"like"}`, reaction.TypeNews, "n1"))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := parseErrorResponse(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if tt.processing && called {
				t.Error("送信中なのにトグルが呼ばれた")
			}
		})
	}
}
