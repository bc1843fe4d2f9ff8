package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/pinkmuse/internal/event"
	"github.com/hitoshi/pinkmuse/internal/model"
)

func TestEventHandler_List_RefreshParam(t *testing.T) {
	store := &mockEventStore{view: event.View{Error: "No pudimos obtener los eventos."}}
	h := NewEventHandler(store)

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/eventos", nil))
	if store.ensures != 1 || store.fetches != 0 {
		t.Errorf("ensures=%d fetches=%d, want 1/0", store.ensures, store.fetches)
	}
	// 取得の失敗はビューのerrorで返す
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var view map[string]any
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view["error"] != "No pudimos obtener los eventos." {
		t.Errorf("error = %v", view["error"])
	}

	h.List(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/eventos?refresh=1", nil))
	if store.fetches != 1 {
		t.Errorf("fetches = %d, want 1", store.fetches)
	}
}

func TestEventHandler_Get(t *testing.T) {
	ev := mustEvent(t, `{"_id":"e1","nombreEvento":"Gira 2025","fecha":"2025-03-01"}`)
	store := &mockEventStore{
		lookupFn: func(ctx context.Context, slug string) (event.Event, error) {
			if slug == "Gira%202025" {
				return ev, nil
			}
			return event.Event{}, model.NewNotFoundError("No encontramos el evento solicitado.")
		},
	}
	h := NewEventHandler(store)

	w := httptest.NewRecorder()
	h.Get(w, withChiURLParams(httptest.NewRequest(http.MethodGet, "/api/eventos/x", nil), "slug", "Gira%202025"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"nombreEvento":"Gira 2025"`) {
		t.Errorf("body = %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	h.Get(w, withChiURLParams(httptest.NewRequest(http.MethodGet, "/api/eventos/x", nil), "slug", "otro"))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestEventHandler_Create(t *testing.T) {
	var gotPayload string
	store := &mockEventStore{
		createFn: func(ctx context.Context, payload json.RawMessage) (event.Event, error) {
			gotPayload = string(payload)
			return mustEvent(t, `{"_id":"e9","nombreEvento":"Nuevo"}`), nil
		},
	}
	h := NewEventHandler(store)

	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/api/eventos", strings.NewReader(`{"nombreEvento":"Nuevo"}`)))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if gotPayload != `{"nombreEvento":"Nuevo"}` {
		t.Errorf("payload = %s", gotPayload)
	}
}

func TestEventHandler_Create_NoEntityReturnsView(t *testing.T) {
	h := NewEventHandler(&mockEventStore{})

	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/api/eventos", strings.NewReader(`{}`)))
	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}
}

func TestEventHandler_Create_ValidationError(t *testing.T) {
	store := &mockEventStore{
		createFn: func(ctx context.Context, payload json.RawMessage) (event.Event, error) {
			return event.Event{}, &model.APIError{
				Code:    model.ErrCodeAPI,
				Message: "El nombre es obligatorio.",
				Status:  http.StatusUnprocessableEntity,
				Details: map[string][]string{"nombreEvento": {"El nombre es obligatorio."}},
			}
		},
	}
	h := NewEventHandler(store)

	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/api/eventos", strings.NewReader(`{}`)))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	body := parseErrorResponse(t, w)
	if body.Message != "El nombre es obligatorio." || len(body.Errors["nombreEvento"]) != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestEventHandler_Create_InvalidJSON(t *testing.T) {
	called := false
	store := &mockEventStore{
		createFn: func(ctx context.Context, payload json.RawMessage) (event.Event, error) {
			called = true
			return event.Event{}, nil
		},
	}
	h := NewEventHandler(store)

	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/api/eventos", strings.NewReader(`{nope`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if called {
		t.Error("不正なJSONでストアが呼ばれた")
	}
	if body := parseErrorResponse(t, w); body.Code != "INVALID_BODY" {
		t.Errorf("code = %q", body.Code)
	}
}

func TestEventHandler_UpdateAndDelete_DecodeName(t *testing.T) {
	var updated, deleted string
	store := &mockEventStore{
		updateFn: func(ctx context.Context, name string, payload json.RawMessage) (event.Event, error) {
			updated = name
			return mustEvent(t, `{"_id":"e1","nombreEvento":"Gira 2026"}`), nil
		},
		deleteFn: func(ctx context.Context, name string) error {
			deleted = name
			return nil
		},
	}
	h := NewEventHandler(store)

	w := httptest.NewRecorder()
	h.Update(w, withChiURLParams(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"nombreEvento":"Gira 2026"}`)), "slug", "Gira%202025"))
	if w.Code != http.StatusOK || updated != "Gira 2025" {
		t.Errorf("update: status=%d name=%q", w.Code, updated)
	}

	w = httptest.NewRecorder()
	h.Delete(w, withChiURLParams(httptest.NewRequest(http.MethodDelete, "/", nil), "slug", "Gira%202026"))
	if w.Code != http.StatusNoContent || deleted != "Gira 2026" {
		t.Errorf("delete: status=%d name=%q", w.Code, deleted)
	}
}

func TestEventHandler_Delete_RemoteFailure(t *testing.T) {
	store := &mockEventStore{
		deleteFn: func(ctx context.Context, name string) error {
			return &model.APIError{Code: model.ErrCodeAPI, Message: "No pudimos eliminar el evento.", Status: http.StatusInternalServerError}
		},
	}
	h := NewEventHandler(store)

	w := httptest.NewRecorder()
	h.Delete(w, withChiURLParams(httptest.NewRequest(http.MethodDelete, "/", nil), "slug", "Gira"))
	// 上流の5xxは502として返す
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}
