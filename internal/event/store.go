package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hitoshi/pinkmuse/internal/entitycache"
	"github.com/hitoshi/pinkmuse/internal/identity"
	"github.com/hitoshi/pinkmuse/internal/metrics"
	"github.com/hitoshi/pinkmuse/internal/model"
)

const (
	msgFetchFailed  = "No pudimos obtener los eventos."
	msgGetFailed    = "No pudimos obtener el evento."
	msgCreateFailed = "No pudimos crear el evento."
	msgUpdateFailed = "No pudimos actualizar el evento."
	msgDeleteFailed = "No pudimos eliminar el evento."
	msgMissingName  = "Falta el nombre del evento."
	msgNotFound     = "No encontramos el evento solicitado."
)

// View はイベントキャッシュの表示用スナップショット。
type View struct {
	Partition
	Loading       bool      `json:"loading"`
	Error         string    `json:"error,omitempty"`
	LastFetchedAt time.Time `json:"last_fetched_at,omitzero"`
}

// Store はイベント一覧を所有するキャッシュ。
// 作成・更新・削除はリモートで確定した後にのみ一覧へ反映する。
type Store struct {
	api    API
	cache  *entitycache.Cache[Event]
	logger *slog.Logger
	now    func() time.Time
}

// NewStore はStoreの新しいインスタンスを生成する。
func NewStore(api API, logger *slog.Logger) *Store {
	return &Store{
		api:    api,
		cache:  entitycache.New[Event]("events", msgFetchFailed, entitycache.ListerFunc[Event](api.List), logger),
		logger: logger,
		now:    time.Now,
	}
}

// SetMetrics はメトリクスの記録先を設定する。
func (s *Store) SetMetrics(m metrics.MetricsCollector) {
	s.cache.SetMetrics(m)
}

// SetClock は「今日」の判定と取得時刻に使う時計を差し替える。
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
		s.cache.SetClock(now)
	}
}

// Fetch は一覧を再取得する。
func (s *Store) Fetch(ctx context.Context) error {
	return s.cache.Fetch(ctx)
}

// EnsureFetched は未取得の場合のみ一覧を取得する。
func (s *Store) EnsureFetched(ctx context.Context) error {
	return s.cache.EnsureFetched(ctx)
}

// State はキャッシュの状態を返す。
func (s *Store) State() entitycache.State[Event] {
	return s.cache.State()
}

// View は現在の一覧を日付で分割した表示用スナップショットを返す。
func (s *Store) View() View {
	st := s.cache.State()
	return View{
		Partition:     PartitionByDate(st.Items, s.now()),
		Loading:       st.Loading,
		Error:         st.Error,
		LastFetchedAt: st.LastFetchedAt,
	}
}

// Lookup はURLエンコードされたイベント名でイベントを探す。
// キャッシュにない場合はリモートから取得してキャッシュへ反映する。
func (s *Store) Lookup(ctx context.Context, slug string) (Event, error) {
	if ev, ok := s.cache.GetByNaturalKey(slug); ok {
		return ev, nil
	}
	name := identity.DecodeComponent(slug)
	if name == "" {
		return Event{}, model.NewMissingDataError(msgMissingName)
	}

	ev, ok, err := s.api.Get(ctx, name)
	if err != nil {
		return Event{}, model.ToAPIError(err, msgGetFailed)
	}
	if !ok {
		return Event{}, model.NewNotFoundError(msgNotFound)
	}
	s.cache.Upsert(ev)
	return ev, nil
}

// Create はイベントを作成し、確定したイベントを一覧へ反映する。
// レスポンスにイベントが含まれない場合は一覧を再取得する。
func (s *Store) Create(ctx context.Context, payload json.RawMessage) (Event, error) {
	created, ok, err := s.api.Create(ctx, payload)
	if err != nil {
		apiErr := model.ToAPIErrorWithDetails(err, msgCreateFailed)
		s.logger.Warn("イベントの作成に失敗しました", slog.String("error", apiErr.Message))
		return Event{}, apiErr
	}
	if !ok {
		s.refetch(ctx)
		return Event{}, nil
	}
	s.cache.Upsert(created)
	return created, nil
}

// Update はnameのイベントを更新し、確定したイベントで一覧を置き換える。
// 名前が変わった場合は旧名の要素も取り除く。
func (s *Store) Update(ctx context.Context, name string, payload json.RawMessage) (Event, error) {
	if name == "" {
		return Event{}, model.NewMissingDataError(msgMissingName)
	}
	updated, ok, err := s.api.Update(ctx, name, payload)
	if err != nil {
		apiErr := model.ToAPIErrorWithDetails(err, msgUpdateFailed)
		s.logger.Warn("イベントの更新に失敗しました",
			slog.String("event", name),
			slog.String("error", apiErr.Message),
		)
		return Event{}, apiErr
	}
	if !ok {
		s.refetch(ctx)
		return Event{}, nil
	}

	s.cache.Upsert(updated)
	if updated.Name != "" && updated.Name != name {
		for _, ev := range s.cache.Items() {
			if ev.Name == name && !entitycache.Same(ev, updated) {
				s.cache.Remove(ev)
			}
		}
	}
	return updated, nil
}

// Delete はnameのイベントを削除し、確定後に一覧から取り除く。
func (s *Store) Delete(ctx context.Context, name string) error {
	if name == "" {
		return model.NewMissingDataError(msgMissingName)
	}
	if err := s.api.Delete(ctx, name); err != nil {
		apiErr := model.ToAPIError(err, msgDeleteFailed)
		s.logger.Warn("イベントの削除に失敗しました",
			slog.String("event", name),
			slog.String("error", apiErr.Message),
		)
		return apiErr
	}
	s.cache.RemoveByIdentifier(name)
	return nil
}

func (s *Store) refetch(ctx context.Context) {
	if err := s.cache.Fetch(ctx); err != nil {
		s.logger.Warn("イベント一覧の再取得に失敗しました", slog.String("error", err.Error()))
	}
}
