package reaction

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/pinkmuse/internal/apiclient"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }
func (s staticToken) Invalidate()   {}

func newTestHTTPAPI(t *testing.T, handler http.HandlerFunc) *HTTPAPI {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	var buf bytes.Buffer
	client, err := apiclient.NewClient(server.Client(), slog.New(slog.NewJSONHandler(&buf, nil)), staticToken("tok"), apiclient.Config{BaseURL: server.URL + "/api"})
	if err != nil {
		t.Fatalf("NewClient がエラーを返した: %v", err)
	}
	return NewHTTPAPI(client)
}

func TestHTTPAPI_Summary_Endpoints(t *testing.T) {
	tests := []struct {
		refType   string
		userID    string
		wantPath  string
		wantQuery string
	}{
		{"noticia", "u1", "/api/noticias/n%201/reacciones", "usuario_id=u1"},
		{"comentario", "", "/api/comentarios/n%201/reacciones", ""},
	}
	for _, tt := range tests {
		t.Run(tt.refType, func(t *testing.T) {
			var gotPath, gotQuery string
			api := newTestHTTPAPI(t, func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.EscapedPath()
				gotQuery = r.URL.RawQuery
				io.WriteString(w, `{"data":{"counts":{"like":2},"total":2,"userReaction":"like"}}`)
			})

			s, err := api.Summary(context.Background(), tt.refType, "n 1", tt.userID)
			if err != nil {
				t.Fatalf("Summary がエラーを返した: %v", err)
			}
			if gotPath != tt.wantPath || gotQuery != tt.wantQuery {
				t.Errorf("request = %s?%s", gotPath, gotQuery)
			}
			if diff := cmp.Diff(Summary{Counts: Counts{Like: 2}, Total: 2, UserReaction: Like}, s); diff != "" {
				t.Errorf("summary (-want +got):\n%s", diff)
			}
		})
	}
}

// TestHTTPAPI_Toggle はリクエストボディと、data.userReactionの優先をテストする。
func TestHTTPAPI_Toggle(t *testing.T) {
	var body map[string]any
	api := newTestHTTPAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/reacciones" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		io.WriteString(w, `{"data":{"summary":{"counts":{"love":1,"like":1},"userReaction":"like"},"userReaction":"love"},"message":"Reaccion actualizada"}`)
	})

	res, err := api.Toggle(context.Background(), ToggleRequest{Tipo: Love, TipoReferencia: "noticia", ReferenciaID: "n1", UsuarioID: "u1"})
	if err != nil {
		t.Fatalf("Toggle がエラーを返した: %v", err)
	}

	wantBody := map[string]any{"tipo": "love", "tipoReferencia": "noticia", "referencia_id": "n1", "usuario_id": "u1"}
	if diff := cmp.Diff(wantBody, body); diff != "" {
		t.Errorf("body (-want +got):\n%s", diff)
	}
	want := ToggleResult{Summary: Summary{Counts: Counts{Like: 1, Love: 1}, Total: 2, UserReaction: Love}, Message: "Reaccion actualizada"}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result (-want +got):\n%s", diff)
	}
}
