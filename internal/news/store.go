package news

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
	msgFetchFailed  = "No fue posible cargar las noticias."
	msgGetFailed    = "No fue posible cargar la noticia."
	msgCreateFailed = "No fue posible crear la noticia."
	msgUpdateFailed = "No fue posible actualizar la noticia."
	msgDeleteFailed = "No fue posible eliminar la noticia."
	msgNotFound     = "Articulo no encontrado"
	msgMissingTitle = "Falta el titulo de la noticia."
)

// View はニュースキャッシュの表示用スナップショット。
type View struct {
	Items         []Item    `json:"items"`
	Loading       bool      `json:"loading"`
	Error         string    `json:"error,omitempty"`
	LastFetchedAt time.Time `json:"last_fetched_at,omitzero"`
}

// Store はニュース記事の一覧を所有するキャッシュ。
type Store struct {
	api       API
	cache     *entitycache.Cache[Article]
	presenter *Presenter
	logger    *slog.Logger
}

// NewStore はStoreの新しいインスタンスを生成する。
func NewStore(api API, presenter *Presenter, logger *slog.Logger) *Store {
	return &Store{
		api:       api,
		cache:     entitycache.New[Article]("news", msgFetchFailed, entitycache.ListerFunc[Article](api.List), logger),
		presenter: presenter,
		logger:    logger,
	}
}

// SetMetrics はメトリクスの記録先を設定する。
func (s *Store) SetMetrics(m metrics.MetricsCollector) {
	s.cache.SetMetrics(m)
}

// Presenter は記事の整形に使うPresenterを返す。
func (s *Store) Presenter() *Presenter {
	return s.presenter
}

// Fetch は一覧を再取得する。
func (s *Store) Fetch(ctx context.Context) error {
	return s.cache.Fetch(ctx)
}

// EnsureFetched は未取得の場合のみ一覧を取得する。
func (s *Store) EnsureFetched(ctx context.Context) error {
	return s.cache.EnsureFetched(ctx)
}

// State はキャッシュの状態（未加工の記事）を返す。
func (s *Store) State() entitycache.State[Article] {
	return s.cache.State()
}

// View は日付の降順に並べた表示用の一覧を返す。
func (s *Store) View() View {
	st := s.cache.State()
	return View{
		Items:         s.presenter.List(st.Items),
		Loading:       st.Loading,
		Error:         st.Error,
		LastFetchedAt: st.LastFetchedAt,
	}
}

// Lookup はURLエンコードされたタイトルで記事を探す。
// キャッシュにない場合、一覧の取得が失敗していればそのエラーを返し、
// そうでなければリモートから単体で取得する。単体取得の結果はキャッシュに反映しない。
func (s *Store) Lookup(ctx context.Context, slug string) (Article, error) {
	if slug == "" {
		return Article{}, model.NewNotFoundError(msgNotFound)
	}
	if a, ok := s.cache.GetByNaturalKey(slug); ok {
		return a, nil
	}
	if st := s.cache.State(); st.Error != "" {
		return Article{}, &model.APIError{
			Code:     model.ErrCodeAPI,
			Message:  st.Error,
			Category: "api",
			Action:   "Inténtalo de nuevo en unos momentos.",
		}
	}

	a, ok, err := s.api.Get(ctx, identity.DecodeComponent(slug))
	if err != nil {
		return Article{}, model.ToAPIError(err, msgGetFailed)
	}
	if !ok {
		return Article{}, model.NewNotFoundError(msgNotFound)
	}
	return a, nil
}

// Create は記事を作成し、一致する既存の記事を取り除いたうえで先頭に追加する。
// レスポンスに記事が含まれない場合、一覧は変更せずfalseを返す。
func (s *Store) Create(ctx context.Context, payload json.RawMessage) (Article, bool, error) {
	created, ok, err := s.api.Create(ctx, payload)
	if err != nil {
		apiErr := model.ToAPIError(err, msgCreateFailed)
		s.logger.Warn("ニュースの作成に失敗しました", slog.String("error", apiErr.Message))
		return Article{}, false, apiErr
	}
	if ok {
		s.cache.Prepend(created)
	}
	return created, ok, nil
}

// Update はcurrentTitleの記事を更新し、一致する記事を置き換える。
// 一覧が空の場合は更新後の記事のみの一覧になる。
func (s *Store) Update(ctx context.Context, currentTitle string, payload json.RawMessage) (Article, bool, error) {
	if currentTitle == "" {
		return Article{}, false, model.NewMissingDataError(msgMissingTitle)
	}
	updated, ok, err := s.api.Update(ctx, currentTitle, payload)
	if err != nil {
		apiErr := model.ToAPIError(err, msgUpdateFailed)
		s.logger.Warn("ニュースの更新に失敗しました",
			slog.String("title", currentTitle),
			slog.String("error", apiErr.Message),
		)
		return Article{}, false, apiErr
	}
	if ok {
		s.cache.Replace(updated, currentTitle)
	}
	return updated, ok, nil
}

// Delete はtitleの記事を削除し、確定後に一致する記事を一覧から取り除く。
func (s *Store) Delete(ctx context.Context, title string) error {
	if title == "" {
		return model.NewMissingDataError(msgMissingTitle)
	}
	deleted, ok, err := s.api.Delete(ctx, title)
	if err != nil {
		apiErr := model.ToAPIError(err, msgDeleteFailed)
		s.logger.Warn("ニュースの削除に失敗しました",
			slog.String("title", title),
			slog.String("error", apiErr.Message),
		)
		return apiErr
	}
	if ok {
		s.cache.Remove(deleted)
	}
	s.cache.RemoveByIdentifier(title)
	return nil
}
