package news

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/pinkmuse/internal/model"
)

// mockAPI はテスト用のAPIモック。
type mockAPI struct {
	listFn   func(ctx context.Context) ([]Article, error)
	getFn    func(ctx context.Context, title string) (Article, bool, error)
	createFn func(ctx context.Context, payload json.RawMessage) (Article, bool, error)
	updateFn func(ctx context.Context, title string, payload json.RawMessage) (Article, bool, error)
	deleteFn func(ctx context.Context, title string) (Article, bool, error)
}

func (m *mockAPI) List(ctx context.Context) ([]Article, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockAPI) Get(ctx context.Context, title string) (Article, bool, error) {
	if m.getFn != nil {
		return m.getFn(ctx, title)
	}
	return Article{}, false, nil
}

func (m *mockAPI) Create(ctx context.Context, payload json.RawMessage) (Article, bool, error) {
	if m.createFn != nil {
		return m.createFn(ctx, payload)
	}
	return Article{}, false, nil
}

func (m *mockAPI) Update(ctx context.Context, title string, payload json.RawMessage) (Article, bool, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, title, payload)
	}
	return Article{}, false, nil
}

func (m *mockAPI) Delete(ctx context.Context, title string) (Article, bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, title)
	}
	return Article{}, false, nil
}

func newTestStore(t *testing.T, api *mockAPI) *Store {
	t.Helper()
	var buf bytes.Buffer
	return NewStore(api, newTestPresenter(), slog.New(slog.NewJSONHandler(&buf, nil)))
}

func listing(raw string) func(ctx context.Context) ([]Article, error) {
	return func(ctx context.Context) ([]Article, error) {
		return ParseList([]byte(raw)), nil
	}
}

func mustArticle(t *testing.T, raw string) Article {
	t.Helper()
	a, ok := Parse([]byte(raw))
	if !ok {
		t.Fatalf("Parse(%s) がfalseを返した", raw)
	}
	return a
}

func articleTitles(items []Article) []string {
	out := make([]string, len(items))
	for i, a := range items {
		out[i] = a.Title
	}
	return out
}

func TestStore_Fetch_FailureMessage(t *testing.T) {
	s := newTestStore(t, &mockAPI{
		listFn: func(ctx context.Context) ([]Article, error) {
			return nil, errors.New("timeout")
		},
	})

	if err := s.Fetch(context.Background()); err == nil {
		t.Fatal("エラーが返されるべき")
	}
	v := s.View()
	if v.Error != "No fue posible cargar las noticias." || len(v.Items) != 0 {
		t.Errorf("View = %+v", v)
	}
}

// TestStore_Create_Prepends は作成した記事が一致する記事を除いて先頭に追加されることをテストする。
func TestStore_Create_Prepends(t *testing.T) {
	s := newTestStore(t, &mockAPI{
		listFn: listing(`[{"_id":"1","titulo":"A"},{"_id":"2","titulo":"B"}]`),
		createFn: func(ctx context.Context, payload json.RawMessage) (Article, bool, error) {
			return mustArticle(t, `{"_id":"3","titulo":"B"}`), true, nil
		},
	})
	if err := s.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}

	created, ok, err := s.Create(context.Background(), json.RawMessage(`{"titulo":"B"}`))
	if err != nil || !ok || created.ID != "3" {
		t.Fatalf("Create = %+v, %v, %v", created, ok, err)
	}

	items := s.State().Items
	if diff := cmp.Diff([]string{"B", "A"}, articleTitles(items)); diff != "" {
		t.Errorf("items (-want +got):\n%s", diff)
	}
	if items[0].ID != "3" {
		t.Errorf("先頭は作成した記事であるべき: %+v", items[0])
	}
}

func TestStore_Create_ErrorKeepsDetails(t *testing.T) {
	s := newTestStore(t, &mockAPI{
		createFn: func(ctx context.Context, payload json.RawMessage) (Article, bool, error) {
			return Article{}, false, &model.APIError{
				Code:    model.ErrCodeValidation,
				Status:  422,
				Details: map[string][]string{"titulo": {"El titulo ya existe."}},
			}
		},
	})

	_, _, err := s.Create(context.Background(), json.RawMessage(`{}`))
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("エラーの型 = %T", err)
	}
	if apiErr.Message != "No fue posible crear la noticia." || apiErr.Status != 422 || len(apiErr.Details["titulo"]) != 1 {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestStore_Update(t *testing.T) {
	t.Run("旧タイトルで一致した記事を置き換える", func(t *testing.T) {
		var gotTitle string
		s := newTestStore(t, &mockAPI{
			listFn: listing(`[{"titulo":"A"},{"titulo":"Viejo"},{"titulo":"C"}]`),
			updateFn: func(ctx context.Context, title string, payload json.RawMessage) (Article, bool, error) {
				gotTitle = title
				return mustArticle(t, `{"titulo":"Nuevo","habilitacionComentarios":false}`), true, nil
			},
		})
		if err := s.Fetch(context.Background()); err != nil {
			t.Fatal(err)
		}

		updated, ok, err := s.Update(context.Background(), "Viejo", json.RawMessage(`{"titulo":"Nuevo"}`))
		if err != nil || !ok {
			t.Fatalf("Update = %v, %v", ok, err)
		}
		if gotTitle != "Viejo" {
			t.Errorf("title = %q", gotTitle)
		}
		if updated.CommentsEnabled {
			t.Error("CommentsEnabled = true, want false")
		}
		if diff := cmp.Diff([]string{"A", "Nuevo", "C"}, articleTitles(s.State().Items)); diff != "" {
			t.Errorf("items (-want +got):\n%s", diff)
		}
	})

	t.Run("空の一覧は更新後の記事のみになる", func(t *testing.T) {
		s := newTestStore(t, &mockAPI{
			updateFn: func(ctx context.Context, title string, payload json.RawMessage) (Article, bool, error) {
				return mustArticle(t, `{"titulo":"Solo"}`), true, nil
			},
		})

		if _, _, err := s.Update(context.Background(), "Solo", json.RawMessage(`{}`)); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"Solo"}, articleTitles(s.State().Items)); diff != "" {
			t.Errorf("items (-want +got):\n%s", diff)
		}
	})
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t, &mockAPI{
		listFn: listing(`[{"_id":"1","titulo":"A"},{"_id":"2","titulo":"B"}]`),
		deleteFn: func(ctx context.Context, title string) (Article, bool, error) {
			return Article{}, false, nil
		},
	})
	if err := s.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(context.Background(), "A"); err != nil {
		t.Fatalf("Delete がエラーを返した: %v", err)
	}
	if diff := cmp.Diff([]string{"B"}, articleTitles(s.State().Items)); diff != "" {
		t.Errorf("items (-want +got):\n%s", diff)
	}

	err := s.Delete(context.Background(), "")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeMissingData {
		t.Errorf("err = %v", err)
	}
}

func TestStore_Lookup(t *testing.T) {
	t.Run("キャッシュにあればリモートを呼ばない", func(t *testing.T) {
		s := newTestStore(t, &mockAPI{
			listFn: listing(`[{"titulo":"Noche Rosa"}]`),
			getFn: func(ctx context.Context, title string) (Article, bool, error) {
				t.Error("Get が呼ばれた")
				return Article{}, false, nil
			},
		})
		if err := s.Fetch(context.Background()); err != nil {
			t.Fatal(err)
		}

		a, err := s.Lookup(context.Background(), "Noche%20Rosa")
		if err != nil || a.Title != "Noche Rosa" {
			t.Errorf("Lookup = %+v, %v", a, err)
		}
	})

	t.Run("キャッシュになければデコードしたタイトルで取得", func(t *testing.T) {
		var gotTitle string
		s := newTestStore(t, &mockAPI{
			getFn: func(ctx context.Context, title string) (Article, bool, error) {
				gotTitle = title
				return mustArticle(t, `{"titulo":"Gala 50%"}`), true, nil
			},
		})

		a, err := s.Lookup(context.Background(), "Gala%2050%25")
		if err != nil || a.Title != "Gala 50%" {
			t.Fatalf("Lookup = %+v, %v", a, err)
		}
		if gotTitle != "Gala 50%" {
			t.Errorf("title = %q", gotTitle)
		}
		if len(s.State().Items) != 0 {
			t.Error("単体取得の結果はキャッシュに反映しないべき")
		}
	})

	t.Run("dataなしは見つからない", func(t *testing.T) {
		s := newTestStore(t, &mockAPI{})

		_, err := s.Lookup(context.Background(), "X")
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNotFound || apiErr.Message != "Articulo no encontrado" {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("一覧の取得が失敗していればそのエラー", func(t *testing.T) {
		s := newTestStore(t, &mockAPI{
			listFn: func(ctx context.Context) ([]Article, error) {
				return nil, &model.APIError{Code: model.ErrCodeAPI, Message: "Servidor caído", Status: 500}
			},
		})
		_ = s.Fetch(context.Background())

		_, err := s.Lookup(context.Background(), "X")
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "Servidor caído" {
			t.Errorf("err = %v", err)
		}
	})
}
