package comment

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/hitoshi/pinkmuse/internal/identity"
	"github.com/hitoshi/pinkmuse/internal/locale"
	"github.com/hitoshi/pinkmuse/internal/metrics"
	"github.com/hitoshi/pinkmuse/internal/model"
	"github.com/hitoshi/pinkmuse/internal/reaction"
	"github.com/hitoshi/pinkmuse/internal/session"
)

// MaxTextLength はコメント本文の最大文字数（ルーン数）。
const MaxTextLength = 600

const (
	msgFetchFailed      = "No fue posible cargar los comentarios."
	msgCreateFailed     = "No fue posible publicar el comentario."
	msgDeleteFailed     = "No fue posible eliminar el comentario."
	msgFetchMissingRef  = "Se requiere el identificador de la noticia para cargar los comentarios."
	msgCreateMissingRef = "Se requiere la noticia para publicar un comentario."
	msgUnauthenticated  = "Debes iniciar sesión para publicar un comentario."
	msgEmptyText        = "El comentario no puede estar vacío."
	msgTextTooLong      = "El comentario no puede superar los 600 caracteres."
	msgDeleteMissing    = "Faltan datos para eliminar el comentario."
)

// Identities は現在のユーザーの識別情報を提供する。
type Identities interface {
	CurrentUserID() string
	Current() (session.Identity, bool)
}

// ReactionPrimer はコメントに埋め込まれたリアクション集計の受け取り先。
type ReactionPrimer interface {
	PrimeSummary(refType, refID string, s reaction.Summary, force bool)
}

// CreateInput はCreateCommentの入力。
type CreateInput struct {
	Text string          `json:"texto"`
	Meta json.RawMessage `json:"meta,omitempty"`
}

// Item は表示用のコメント。
type Item struct {
	Comment
	IsOwner      bool   `json:"isOwner"`
	RelativeTime string `json:"relativeTime,omitempty"`
	DisplayDate  string `json:"displayDate,omitempty"`
}

// View は記事ごとのコメントスレッドのスナップショット。
type View struct {
	Comments      []Item    `json:"comments"`
	Loading       bool      `json:"loading"`
	Submitting    bool      `json:"submitting"`
	Error         string    `json:"error"`
	LastFetchedAt time.Time `json:"lastFetchedAt,omitzero"`
}

type thread struct {
	items         []Comment
	loading       bool
	submitting    bool
	err           string
	lastFetchedAt time.Time
}

// Store は記事IDごとにコメント一覧を保持する。
// 投稿はサーバーの確定後にのみ一覧へ反映する。
type Store struct {
	api       API
	users     Identities
	reactions ReactionPrimer
	logger    *slog.Logger
	metrics   metrics.MetricsCollector
	now       func() time.Time
	loc       *time.Location

	mu             sync.Mutex
	threads        map[string]*thread
	pendingDeletes map[string]bool
}

// NewStore はStoreの新しいインスタンスを生成する。
func NewStore(api API, users Identities, logger *slog.Logger) *Store {
	return &Store{
		api:            api,
		users:          users,
		logger:         logger,
		metrics:        metrics.Nop{},
		now:            time.Now,
		loc:            time.Local,
		threads:        make(map[string]*thread),
		pendingDeletes: make(map[string]bool),
	}
}

// SetMetrics はメトリクスの記録先を設定する。
func (s *Store) SetMetrics(m metrics.MetricsCollector) {
	if m != nil {
		s.metrics = m
	}
}

// SetReactionPrimer はコメントに埋め込まれた集計の受け取り先を設定する。
func (s *Store) SetReactionPrimer(p ReactionPrimer) {
	s.reactions = p
}

// SetClock は現在時刻と日付解釈のロケーションを差し替える。テスト用。
func (s *Store) SetClock(now func() time.Time, loc *time.Location) {
	if now != nil {
		s.now = now
	}
	if loc != nil {
		s.loc = loc
	}
}

// GetState は記事のコメント一覧を返す。各コメントのIsOwnerは現在のユーザーと比較して算出する。
func (s *Store) GetState(articleID string) View {
	key := identity.NormalizeID(articleID)
	userID := s.users.CurrentUserID()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[key]
	if key == "" || !ok {
		return View{Comments: []Item{}}
	}

	items := make([]Item, 0, len(t.items))
	for _, c := range t.items {
		it := Item{Comment: c}
		if c.User != nil {
			it.IsOwner = identity.Equal(c.User.ID, userID)
		}
		if !c.Date.IsZero() {
			it.RelativeTime = locale.FormatRelative(c.Date, now)
			it.DisplayDate = locale.FormatDateTime(c.Date.In(s.loc))
		}
		items = append(items, it)
	}
	return View{
		Comments:      items,
		Loading:       t.loading,
		Submitting:    t.submitting,
		Error:         t.err,
		LastFetchedAt: t.lastFetchedAt,
	}
}

// FetchComments は記事のコメント一覧を取得して置き換える。
// forceでない場合、取得済みまたは取得中であればリクエストせずに現在の一覧を返す。
// 失敗時はエラーを記録し、以前の一覧は保持する。
func (s *Store) FetchComments(ctx context.Context, articleID string, force bool) ([]Comment, error) {
	key := identity.NormalizeID(articleID)
	if key == "" {
		return nil, model.NewMissingReferenceError(msgFetchMissingRef)
	}

	s.mu.Lock()
	t := s.threadLocked(key)
	if !force && (t.loading || !t.lastFetchedAt.IsZero()) {
		items := append([]Comment(nil), t.items...)
		s.mu.Unlock()
		return items, nil
	}
	t.loading = true
	t.err = ""
	s.mu.Unlock()

	raw, err := s.api.List(ctx, key, s.users.CurrentUserID())
	if err != nil {
		apiErr := model.ToAPIError(err, msgFetchFailed)
		s.mu.Lock()
		t := s.threadLocked(key)
		t.loading = false
		t.err = apiErr.Message
		s.mu.Unlock()
		s.metrics.RecordCacheFetch("comments", false)
		s.logger.Warn("コメント一覧の取得に失敗しました",
			slog.String("article_id", key),
			slog.String("error", apiErr.Message),
		)
		return nil, apiErr
	}

	var comments []Comment
	if list := gjson.ParseBytes(raw); list.IsArray() {
		for _, v := range list.Array() {
			if c, ok := Normalize(v, nil, s.loc); ok {
				comments = append(comments, c)
			}
		}
	}
	if comments == nil {
		comments = []Comment{}
	}
	s.prime(comments)

	s.mu.Lock()
	t = s.threadLocked(key)
	t.items = comments
	t.loading = false
	t.err = ""
	t.lastFetchedAt = s.now()
	s.mu.Unlock()
	s.metrics.RecordCacheFetch("comments", true)

	return append([]Comment(nil), comments...), nil
}

// CreateComment はコメントを投稿し、確定したコメントを一覧の先頭に追加する。
// 同じIDのコメントが既にあれば取り除いてから追加する。
// 未ログインや本文が空の場合はリクエストせず、送信中状態にもしない。
// レスポンスからコメントを解釈できない場合、一覧は変更せずfalseを返す。
func (s *Store) CreateComment(ctx context.Context, articleID string, in CreateInput) (Comment, bool, error) {
	key := identity.NormalizeID(articleID)
	if key == "" {
		return Comment{}, false, model.NewMissingReferenceError(msgCreateMissingRef)
	}
	userID := s.users.CurrentUserID()
	if userID == "" {
		return Comment{}, false, model.NewUnauthenticatedError(msgUnauthenticated)
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Comment{}, false, model.NewValidationError(msgEmptyText)
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return Comment{}, false, model.NewValidationError(msgTextTooLong)
	}

	req := CreateRequest{
		Texto:     text,
		UsuarioID: userID,
		Fecha:     s.now().UTC().Format(isoLayout),
	}
	if gjson.ValidBytes(in.Meta) && gjson.ParseBytes(in.Meta).IsObject() {
		req.Meta = in.Meta
	}

	s.mu.Lock()
	t := s.threadLocked(key)
	t.submitting = true
	t.err = ""
	s.mu.Unlock()

	raw, err := s.api.Create(ctx, key, req)
	if err != nil {
		apiErr := model.ToAPIError(err, msgCreateFailed)
		s.mu.Lock()
		t := s.threadLocked(key)
		t.submitting = false
		t.err = apiErr.Message
		s.mu.Unlock()
		s.metrics.RecordCommentMutation("create", false)
		s.logger.Warn("コメントの投稿に失敗しました",
			slog.String("article_id", key),
			slog.String("error", apiErr.Message),
		)
		return Comment{}, false, apiErr
	}

	var author *User
	if ident, ok := s.users.Current(); ok {
		author = UserFromIdentity(ident)
	}
	created, ok := Normalize(gjson.ParseBytes(raw), author, s.loc)
	if ok {
		s.prime([]Comment{created})
	}

	s.mu.Lock()
	t = s.threadLocked(key)
	if ok {
		items := make([]Comment, 0, len(t.items)+1)
		items = append(items, created)
		for _, c := range t.items {
			if c.ID != created.ID {
				items = append(items, c)
			}
		}
		t.items = items
	}
	t.submitting = false
	t.err = ""
	s.mu.Unlock()
	s.metrics.RecordCommentMutation("create", true)

	return created, ok, nil
}

// DeleteComment はコメントを削除し、確定後に一覧から取り除く。
// 処理中はIsDeletingCommentがtrueを返す。失敗時は一覧を変更しない。
func (s *Store) DeleteComment(ctx context.Context, articleID, commentID string) error {
	key := identity.NormalizeID(articleID)
	commentKey := identity.NormalizeID(commentID)
	if key == "" || commentKey == "" {
		return model.NewMissingDataError(msgDeleteMissing)
	}

	s.mu.Lock()
	s.pendingDeletes[commentKey] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pendingDeletes, commentKey)
		s.mu.Unlock()
	}()

	if err := s.api.Delete(ctx, commentKey); err != nil {
		apiErr := model.ToAPIError(err, msgDeleteFailed)
		s.mu.Lock()
		s.threadLocked(key).err = apiErr.Message
		s.mu.Unlock()
		s.metrics.RecordCommentMutation("delete", false)
		s.logger.Warn("コメントの削除に失敗しました",
			slog.String("article_id", key),
			slog.String("comment_id", commentKey),
			slog.String("error", apiErr.Message),
		)
		return apiErr
	}

	s.mu.Lock()
	t := s.threadLocked(key)
	items := make([]Comment, 0, len(t.items))
	for _, c := range t.items {
		if identity.NormalizeID(c.ID) != commentKey {
			items = append(items, c)
		}
	}
	t.items = items
	t.err = ""
	s.mu.Unlock()
	s.metrics.RecordCommentMutation("delete", true)
	return nil
}

// ClearComments は記事のコメントスレッドを破棄する。
func (s *Store) ClearComments(articleID string) {
	key := identity.NormalizeID(articleID)
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, key)
}

// IsDeletingComment はコメントの削除が送信中かを返す。
func (s *Store) IsDeletingComment(commentID string) bool {
	key := identity.NormalizeID(commentID)
	if key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingDeletes[key]
}

// threadLocked はスレッドを返し、なければ作成する。s.muを保持して呼び出すこと。
func (s *Store) threadLocked(key string) *thread {
	t, ok := s.threads[key]
	if !ok {
		t = &thread{items: []Comment{}}
		s.threads[key] = t
	}
	return t
}

// prime は埋め込まれていた集計をリアクションキャッシュへ渡す。
func (s *Store) prime(comments []Comment) {
	if s.reactions == nil {
		return
	}
	for _, c := range comments {
		if c.HasReactions {
			s.reactions.PrimeSummary(reaction.TypeComment, c.ID, c.Reactions, false)
		}
	}
}
