package entitycache

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/hitoshi/pinkmuse/internal/identity"
	"github.com/hitoshi/pinkmuse/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testEntity struct {
	ID   any
	Name string
	Note string
}

func (e testEntity) Key() string        { return identity.NormalizeID(e.ID) }
func (e testEntity) NaturalKey() string { return e.Name }

// fakeMetrics はテスト用のメトリクス記録。
type fakeMetrics struct {
	mu      sync.Mutex
	fetches map[bool]int
	stale   int
}

func (f *fakeMetrics) RecordAPIRequest(string, int, time.Duration) {}
func (f *fakeMetrics) RecordCacheFetch(_ string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetches == nil {
		f.fetches = map[bool]int{}
	}
	f.fetches[ok]++
}
func (f *fakeMetrics) RecordStaleFetchDiscarded(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stale++
}
func (f *fakeMetrics) RecordReactionToggle(string)       {}
func (f *fakeMetrics) RecordCommentMutation(string, bool) {}

func newTestCache(t *testing.T, lister Lister[testEntity]) *Cache[testEntity] {
	t.Helper()
	var buf bytes.Buffer
	c := New[testEntity]("test", "No pudimos obtener los datos.", lister, slog.New(slog.NewJSONHandler(&buf, nil)))
	return c
}

func staticLister(items ...testEntity) Lister[testEntity] {
	return ListerFunc[testEntity](func(ctx context.Context) ([]testEntity, error) {
		return items, nil
	})
}

func names(items []testEntity) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

func TestCache_Fetch_ReplacesCollection(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	c := newTestCache(t, staticLister(testEntity{ID: "1", Name: "A"}, testEntity{ID: "2", Name: "B"}))
	c.SetClock(func() time.Time { return fixed })
	c.Upsert(testEntity{ID: "9", Name: "local"})

	if err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}

	st := c.State()
	if diff := cmp.Diff([]string{"A", "B"}, names(st.Items)); diff != "" {
		t.Errorf("全置換されていない (-want +got):\n%s", diff)
	}
	if !st.LastFetchedAt.Equal(fixed) {
		t.Errorf("LastFetchedAt = %v, want %v", st.LastFetchedAt, fixed)
	}
	if st.Loading || st.Error != "" {
		t.Errorf("Loading = %v, Error = %q", st.Loading, st.Error)
	}
}

// TestCache_Fetch_KeepsServerItemsAsIs は名前が重複していても取得結果を
// まとめずにそのまま保持することをテストする。
func TestCache_Fetch_KeepsServerItemsAsIs(t *testing.T) {
	c := newTestCache(t, staticLister(
		testEntity{ID: "1", Name: "Gira"},
		testEntity{ID: "2", Name: "Gira"},
		testEntity{ID: "3", Name: "Otra"},
	))

	if err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}

	got := c.Items()
	ids := make([]string, 0, len(got))
	for _, e := range got {
		ids = append(ids, e.ID.(string))
	}
	if diff := cmp.Diff([]string{"1", "2", "3"}, ids); diff != "" {
		t.Errorf("取得結果が変わっている (-want +got):\n%s", diff)
	}
}

// TestCache_Fetch_FailClosed は取得失敗時に集合が空になりエラーが記録されることをテストする。
func TestCache_Fetch_FailClosed(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"サーバーメッセージを優先", &model.APIError{Code: model.ErrCodeAPI, Message: "Servicio no disponible", Status: 503}, "Servicio no disponible"},
		{"メッセージなしはフォールバック", errors.New("dial tcp: connection refused"), "No pudimos obtener los datos."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fail := false
			c := newTestCache(t, ListerFunc[testEntity](func(ctx context.Context) ([]testEntity, error) {
				if fail {
					return nil, tt.err
				}
				return []testEntity{{ID: "1", Name: "A"}}, nil
			}))
			m := &fakeMetrics{}
			c.SetMetrics(m)

			if err := c.Fetch(context.Background()); err != nil {
				t.Fatalf("初回Fetch がエラーを返した: %v", err)
			}
			fail = true
			err := c.Fetch(context.Background())

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("エラーの型 = %T, want *model.APIError", err)
			}
			if apiErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
			st := c.State()
			if len(st.Items) != 0 {
				t.Errorf("失敗時は集合が空であるべき: %v", names(st.Items))
			}
			if st.Error != tt.wantMsg {
				t.Errorf("State.Error = %q", st.Error)
			}
			if m.fetches[true] != 1 || m.fetches[false] != 1 {
				t.Errorf("fetch metrics = %v", m.fetches)
			}
		})
	}
}

// TestCache_Fetch_DiscardsStaleResponse は後から開始した取得が先に反映された場合、
// 遅れて到着した古い応答が破棄されることをテストする。
func TestCache_Fetch_DiscardsStaleResponse(t *testing.T) {
	firstEntered := make(chan struct{})
	releaseFirst := make(chan struct{})
	var mu sync.Mutex
	calls := 0

	c := newTestCache(t, ListerFunc[testEntity](func(ctx context.Context) ([]testEntity, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(firstEntered)
			<-releaseFirst
			return []testEntity{{ID: "old", Name: "Viejo"}}, nil
		}
		return []testEntity{{ID: "new", Name: "Nuevo"}}, nil
	}))
	m := &fakeMetrics{}
	c.SetMetrics(m)

	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(context.Background())
	}()
	<-firstEntered

	if !c.State().Loading {
		t.Error("取得中はLoadingがtrueであるべき")
	}
	if err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("2回目のFetch がエラーを返した: %v", err)
	}
	close(releaseFirst)
	if err := <-done; err != nil {
		t.Fatalf("1回目のFetch がエラーを返した: %v", err)
	}

	st := c.State()
	if diff := cmp.Diff([]string{"Nuevo"}, names(st.Items)); diff != "" {
		t.Errorf("古い応答で上書きされた (-want +got):\n%s", diff)
	}
	if st.Loading {
		t.Error("全ての取得完了後はLoadingがfalseであるべき")
	}
	if m.stale != 1 {
		t.Errorf("stale = %d, want 1", m.stale)
	}
}

func TestCache_EnsureFetched_OnlyOnce(t *testing.T) {
	calls := 0
	c := newTestCache(t, ListerFunc[testEntity](func(ctx context.Context) ([]testEntity, error) {
		calls++
		return nil, errors.New("boom")
	}))

	_ = c.EnsureFetched(context.Background())
	_ = c.EnsureFetched(context.Background())

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCache_Upsert(t *testing.T) {
	c := newTestCache(t, staticLister(
		testEntity{ID: "1", Name: "A"},
		testEntity{ID: "2", Name: "B"},
		testEntity{ID: "3", Name: "C"},
	))
	if err := c.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}

	// キー一致は位置を保って置き換える
	c.Upsert(testEntity{ID: map[string]any{"$oid": "2"}, Name: "B", Note: "editado"})
	// 自然キー一致も置き換え対象
	c.Upsert(testEntity{Name: "C", Note: "sin id"})
	// 一致なしは末尾に追加
	c.Upsert(testEntity{ID: "4", Name: "D"})

	want := []testEntity{
		{ID: "1", Name: "A"},
		{ID: map[string]any{"$oid": "2"}, Name: "B", Note: "editado"},
		{Name: "C", Note: "sin id"},
		{ID: "4", Name: "D"},
	}
	if diff := cmp.Diff(want, c.Items()); diff != "" {
		t.Errorf("Upsert 後の集合が異なる (-want +got):\n%s", diff)
	}
}

// TestCache_Upsert_NeverDuplicatesKeys は任意のUpsert列の後にキーの重複がないことをテストする。
func TestCache_Upsert_NeverDuplicatesKeys(t *testing.T) {
	c := newTestCache(t, staticLister())
	ops := []testEntity{
		{ID: "1", Name: "A"},
		{ID: "2", Name: "B"},
		{ID: " 1 ", Name: "A2"},
		{ID: "3", Name: "B"},
		{ID: map[string]any{"_id": "2"}, Name: "Z"},
		{ID: "1", Name: "Z"},
	}
	for _, op := range ops {
		c.Upsert(op)

		seenKeys := map[string]bool{}
		seenNames := map[string]bool{}
		for _, it := range c.Items() {
			if k := it.Key(); k != "" {
				if seenKeys[k] {
					t.Fatalf("キー %q が重複している: %+v", k, c.Items())
				}
				seenKeys[k] = true
			}
			if seenNames[it.Name] {
				t.Fatalf("名前 %q が重複している: %+v", it.Name, c.Items())
			}
			seenNames[it.Name] = true
		}
	}
}

func TestCache_Prepend(t *testing.T) {
	c := newTestCache(t, staticLister(testEntity{ID: "1", Name: "A"}, testEntity{ID: "2", Name: "B"}))
	if err := c.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}

	c.Prepend(testEntity{ID: "2", Name: "B", Note: "nuevo"})

	if diff := cmp.Diff([]string{"B", "A"}, names(c.Items())); diff != "" {
		t.Errorf("Prepend (-want +got):\n%s", diff)
	}
}

func TestCache_Replace(t *testing.T) {
	t.Run("ヒントの名前で一致", func(t *testing.T) {
		c := newTestCache(t, staticLister(testEntity{ID: "1", Name: "Viejo título"}, testEntity{ID: "2", Name: "B"}))
		if err := c.Fetch(context.Background()); err != nil {
			t.Fatal(err)
		}

		c.Replace(testEntity{Name: "Nuevo título"}, "Viejo título")

		if diff := cmp.Diff([]string{"Nuevo título", "B"}, names(c.Items())); diff != "" {
			t.Errorf("Replace (-want +got):\n%s", diff)
		}
	})

	t.Run("一致なしは追加しない", func(t *testing.T) {
		c := newTestCache(t, staticLister(testEntity{ID: "1", Name: "A"}))
		if err := c.Fetch(context.Background()); err != nil {
			t.Fatal(err)
		}

		c.Replace(testEntity{ID: "9", Name: "X"}, "Y")

		if diff := cmp.Diff([]string{"A"}, names(c.Items())); diff != "" {
			t.Errorf("Replace (-want +got):\n%s", diff)
		}
	})

	t.Run("空の集合は置き換え対象のみになる", func(t *testing.T) {
		c := newTestCache(t, staticLister())

		c.Replace(testEntity{ID: "9", Name: "X"}, "Y")

		if diff := cmp.Diff([]string{"X"}, names(c.Items())); diff != "" {
			t.Errorf("Replace (-want +got):\n%s", diff)
		}
	})
}

func TestCache_Remove(t *testing.T) {
	c := newTestCache(t, staticLister(
		testEntity{ID: "1", Name: "Feria de Otoño"},
		testEntity{ID: "2", Name: "B"},
		testEntity{ID: "3", Name: "C"},
	))
	if err := c.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}

	c.RemoveByIdentifier(identity.EncodeComponent("Feria de Otoño"))
	c.Remove(testEntity{ID: map[string]any{"$oid": "3"}})
	c.RemoveByIdentifier("")

	if diff := cmp.Diff([]string{"B"}, names(c.Items())); diff != "" {
		t.Errorf("Remove (-want +got):\n%s", diff)
	}

	c.RemoveByIdentifier("2")
	if len(c.Items()) != 0 {
		t.Errorf("識別キーでの削除に失敗: %v", names(c.Items()))
	}
}

func TestCache_GetByNaturalKey(t *testing.T) {
	c := newTestCache(t, staticLister(
		testEntity{ID: "1", Name: "Expo 50%"},
		testEntity{ID: "2", Name: "Noche Rosa"},
	))
	if err := c.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		slug   string
		want   string
		wantOK bool
	}{
		{"Noche%20Rosa", "Noche Rosa", true},
		{"Noche Rosa", "Noche Rosa", true},
		{"Expo%2050%25", "Expo 50%", true},
		{"Expo 50%", "Expo 50%", true}, // デコード失敗時は入力をそのまま使う
		{"Desconocido", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := c.GetByNaturalKey(tt.slug)
		if ok != tt.wantOK || got.Name != tt.want {
			t.Errorf("GetByNaturalKey(%q) = %q, %v; want %q, %v", tt.slug, got.Name, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCache_StateIsCopy(t *testing.T) {
	c := newTestCache(t, staticLister(testEntity{ID: "1", Name: "A"}))
	if err := c.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}

	st := c.State()
	st.Items[0].Name = "mutado"

	if c.Items()[0].Name != "A" {
		t.Error("スナップショットの変更がキャッシュに影響した")
	}
}
