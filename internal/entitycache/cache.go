// Package entitycache はリモートの一覧エンドポイント1つから取得したエンティティ集合を
// メモリ上に保持し、作成・更新・削除の結果を反映する汎用キャッシュを提供する。
//
// 取得（Fetch）は全置換で、失敗時はエラーを記録して集合を空にする（fail-closed）。
// 並行するFetchは開始順の連番で管理し、後から開始したFetchが既に反映済みであれば
// 古い応答は破棄する。
package entitycache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/pinkmuse/internal/identity"
	"github.com/hitoshi/pinkmuse/internal/metrics"
	"github.com/hitoshi/pinkmuse/internal/model"
)

// Entity はキャッシュに格納できる要素。
type Entity interface {
	// Key は正規化済みの識別キーを返す。解決できない場合は空文字列。
	Key() string
	// NaturalKey はイベント名や記事タイトルなど、人が読める一意の名前を返す。
	NaturalKey() string
}

// Lister は一覧エンドポイントからエンティティを取得する。
type Lister[T Entity] interface {
	List(ctx context.Context) ([]T, error)
}

// ListerFunc は関数をListerとして扱うためのアダプタ。
type ListerFunc[T Entity] func(ctx context.Context) ([]T, error)

// List はf(ctx)を呼び出す。
func (f ListerFunc[T]) List(ctx context.Context) ([]T, error) {
	return f(ctx)
}

// State はキャッシュの読み取り専用スナップショット。
type State[T Entity] struct {
	Items         []T       `json:"items"`
	Loading       bool      `json:"loading"`
	Error         string    `json:"error,omitempty"`
	LastFetchedAt time.Time `json:"last_fetched_at,omitzero"`
}

// Cache は1種類のエンティティ集合を所有するキャッシュ。
// 集合への書き込みはCacheのメソッドのみが行い、呼び出し側には常にコピーを返す。
type Cache[T Entity] struct {
	name     string
	fallback string
	lister   Lister[T]
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
	now      func() time.Time

	mu            sync.Mutex
	items         []T
	inflight      int
	errMsg        string
	lastFetchedAt time.Time
	fetched       bool
	started       uint64
	applied       uint64
}

// New はCacheの新しいインスタンスを生成する。
// nameはログとメトリクスのラベル、fallbackは取得失敗時にサーバーのメッセージがない場合の文言。
func New[T Entity](name, fallback string, lister Lister[T], logger *slog.Logger) *Cache[T] {
	return &Cache[T]{
		name:     name,
		fallback: fallback,
		lister:   lister,
		logger:   logger,
		metrics:  metrics.Nop{},
		now:      time.Now,
	}
}

// SetMetrics はメトリクスの記録先を設定する。
func (c *Cache[T]) SetMetrics(m metrics.MetricsCollector) {
	if m != nil {
		c.metrics = m
	}
}

// SetClock は取得時刻の記録に使う時計を差し替える。
func (c *Cache[T]) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// Name はキャッシュ名を返す。
func (c *Cache[T]) Name() string {
	return c.name
}

// Fetch は一覧を取得して集合を全置換する。
// 失敗時はエラーメッセージを記録して集合を空にし、正規化したエラーを返す。
// 自分より後に開始したFetchが既に反映されている場合、応答は破棄される。
func (c *Cache[T]) Fetch(ctx context.Context) error {
	c.mu.Lock()
	c.started++
	seq := c.started
	c.inflight++
	c.mu.Unlock()

	items, err := c.lister.List(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--

	var apiErr *model.APIError
	if err != nil {
		apiErr = model.ToAPIError(err, c.fallback)
	}

	if seq < c.applied {
		c.metrics.RecordStaleFetchDiscarded(c.name)
		c.logger.Debug("古い取得結果を破棄しました",
			slog.String("cache", c.name),
			slog.Uint64("seq", seq),
			slog.Uint64("applied", c.applied),
		)
		if apiErr != nil {
			return apiErr
		}
		return nil
	}
	c.applied = seq
	c.fetched = true

	if apiErr != nil {
		c.metrics.RecordCacheFetch(c.name, false)
		c.logger.Warn("一覧の取得に失敗しました",
			slog.String("cache", c.name),
			slog.String("error", apiErr.Message),
		)
		c.errMsg = apiErr.Message
		c.items = nil
		return apiErr
	}

	c.metrics.RecordCacheFetch(c.name, true)
	c.errMsg = ""
	c.items = append(make([]T, 0, len(items)), items...)
	c.lastFetchedAt = c.now()
	return nil
}

// EnsureFetched はまだ一度も取得結果が反映されていない場合にのみFetchする。
// 失敗した取得も「反映済み」とみなし、自動的な再試行は行わない。
func (c *Cache[T]) EnsureFetched(ctx context.Context) error {
	c.mu.Lock()
	done := c.fetched || c.inflight > 0
	c.mu.Unlock()
	if done {
		return nil
	}
	return c.Fetch(ctx)
}

// State は現在の状態のスナップショットを返す。
func (c *Cache[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State[T]{
		Items:         c.snapshot(),
		Loading:       c.inflight > 0,
		Error:         c.errMsg,
		LastFetchedAt: c.lastFetchedAt,
	}
}

// Items は集合のコピーを返す。
func (c *Cache[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Upsert はサーバーで確定したエンティティを反映する。
// キーまたは自然キーが一致する要素があれば最初の位置で置き換え、なければ末尾に追加する。
// 一致する要素が複数ある場合、2件目以降は取り除く。
func (c *Cache[T]) Upsert(e T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]T, 0, len(c.items)+1)
	replaced := false
	for _, item := range c.items {
		if !Same(item, e) {
			out = append(out, item)
			continue
		}
		if !replaced {
			out = append(out, e)
			replaced = true
		}
	}
	if !replaced {
		out = append(out, e)
	}
	c.items = out
}

// Prepend は一致する要素を取り除いたうえでエンティティを先頭に追加する。
func (c *Cache[T]) Prepend(e T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]T, 0, len(c.items)+1)
	out = append(out, e)
	for _, item := range c.items {
		if !Same(item, e) {
			out = append(out, item)
		}
	}
	c.items = out
}

// Replace はeまたはhint（自然キー）に一致する要素を最初の位置でeに置き換える。
// 一致する要素がない場合は追加しない。ただし集合が空の場合はeのみの集合にする。
func (c *Cache[T]) Replace(e T, hint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) == 0 {
		c.items = []T{e}
		return
	}
	out := make([]T, 0, len(c.items))
	replaced := false
	for _, item := range c.items {
		if !Same(item, e) && !MatchesIdentifier(item, hint) {
			out = append(out, item)
			continue
		}
		if !replaced {
			out = append(out, e)
			replaced = true
		}
	}
	c.items = out
}

// Remove はeに一致する要素をすべて取り除く。
func (c *Cache[T]) Remove(e T) {
	c.removeWhere(func(item T) bool { return Same(item, e) })
}

// RemoveByIdentifier は識別子（自然キー、そのURLエンコード形、または識別キー）に
// 一致する要素をすべて取り除く。
func (c *Cache[T]) RemoveByIdentifier(id string) {
	if id == "" {
		return
	}
	c.removeWhere(func(item T) bool { return MatchesIdentifier(item, id) })
}

func (c *Cache[T]) removeWhere(match func(T) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]T, 0, len(c.items))
	for _, item := range c.items {
		if !match(item) {
			out = append(out, item)
		}
	}
	c.items = out
}

// GetByNaturalKey はURLエンコードされた自然キーで要素を探す。
// デコードした値との一致を優先し、見つからなければエンコード形同士で比較する。
// デコードに失敗した場合は入力をそのまま使う。
func (c *Cache[T]) GetByNaturalKey(slug string) (T, bool) {
	var zero T
	if slug == "" {
		return zero, false
	}
	decoded := identity.DecodeComponent(slug)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range c.items {
		if item.NaturalKey() != "" && item.NaturalKey() == decoded {
			return item, true
		}
	}
	for _, item := range c.items {
		if identity.EncodeComponent(item.NaturalKey()) == slug {
			return item, true
		}
	}
	return zero, false
}

func (c *Cache[T]) snapshot() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Same はaとbが同じエンティティを指すかを返す。
// 空でない識別キー同士、または空でない自然キー同士が一致する場合に真となる。
func Same[T Entity](a, b T) bool {
	if ka := a.Key(); ka != "" && ka == b.Key() {
		return true
	}
	na := a.NaturalKey()
	return na != "" && na == b.NaturalKey()
}

// MatchesIdentifier は生の識別子文字列がitemを指すかを返す。
func MatchesIdentifier[T Entity](item T, id string) bool {
	if id == "" {
		return false
	}
	name := item.NaturalKey()
	if name != "" && (name == identity.DecodeComponent(id) || identity.EncodeComponent(name) == id) {
		return true
	}
	key := item.Key()
	return key != "" && key == identity.NormalizeID(id)
}
