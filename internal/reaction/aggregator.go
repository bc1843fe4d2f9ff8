package reaction

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/pinkmuse/internal/identity"
	"github.com/hitoshi/pinkmuse/internal/metrics"
	"github.com/hitoshi/pinkmuse/internal/model"
)

const (
	msgFetchFailed      = "No fue posible obtener las reacciones."
	msgToggleFailed     = "No fue posible actualizar la reaccion."
	msgInvalidReference = "Referencia de reaccion invalida."
	msgUnauthenticated  = "Debes iniciar sesion para reaccionar."
)

// UserSource は現在のユーザーIDを提供する。
type UserSource interface {
	CurrentUserID() string
}

// State は参照先ごとの集計とその取得状態。
type State struct {
	Summary
	Loading       bool      `json:"loading"`
	Error         string    `json:"error"`
	LastFetchedAt time.Time `json:"lastFetchedAt,omitzero"`
}

// FetchOptions はFetchSummaryのオプション。
type FetchOptions struct {
	Force bool
	// UserID は空の場合、現在のユーザーIDを使う。
	UserID string
}

// Aggregator は (参照種別, 参照ID) ごとのリアクション集計を保持する。
//
// 同じキーへのトグルは処理中フラグで示すのみで、直列化はしない。
// 処理中に2回目のトグルが呼ばれた場合も受け付けるため、呼び出し側が
// IsProcessingを見て操作を無効化する必要がある。
type Aggregator struct {
	api     API
	users   UserSource
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	now     func() time.Time

	mu         sync.Mutex
	entries    map[string]State
	processing map[string]bool
}

// NewAggregator はAggregatorの新しいインスタンスを生成する。
func NewAggregator(api API, users UserSource, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		api:        api,
		users:      users,
		logger:     logger,
		metrics:    metrics.Nop{},
		now:        time.Now,
		entries:    make(map[string]State),
		processing: make(map[string]bool),
	}
}

// SetMetrics はメトリクスの記録先を設定する。
func (a *Aggregator) SetMetrics(m metrics.MetricsCollector) {
	if m != nil {
		a.metrics = m
	}
}

// Key は参照種別と正規化した参照IDから "type:id" 形式のキーを返す。
// いずれかが空の場合は空文字列。
func Key(refType, refID string) string {
	id := identity.NormalizeID(refID)
	if refType == "" || id == "" {
		return ""
	}
	return refType + ":" + id
}

// GetSummary は現在の集計を返す。未取得の場合は0件の集計を返す。
func (a *Aggregator) GetSummary(refType, refID string) State {
	key := Key(refType, refID)
	if key == "" {
		return State{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries[key]
}

// CanReact は現在のユーザーがリアクションできるか（ログイン済みか）を返す。
func (a *Aggregator) CanReact() bool {
	return a.users.CurrentUserID() != ""
}

// IsProcessing はキーに対するトグルが送信中かを返す。
func (a *Aggregator) IsProcessing(refType, refID string) bool {
	key := Key(refType, refID)
	if key == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.processing[key]
}

// PrimeSummary は親エンティティに埋め込まれていた集計でキャッシュを初期化する。
// 既に取得済みのキーはforceでない限り変更しない。
func (a *Aggregator) PrimeSummary(refType, refID string, s Summary, force bool) {
	key := Key(refType, refID)
	if key == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.entries[key]; ok && !force && !existing.LastFetchedAt.IsZero() {
		return
	}
	a.entries[key] = State{Summary: s, LastFetchedAt: a.now()}
}

// FetchSummary はサーバーから集計を取得して置き換える。
// forceでなく同じキーの取得が進行中であれば、リクエストせずに現在の集計を返す。
// 失敗時はエラーを記録するが、以前の集計は保持する。
func (a *Aggregator) FetchSummary(ctx context.Context, refType, refID string, opts FetchOptions) (Summary, error) {
	key := Key(refType, refID)
	if key == "" {
		return Summary{}, nil
	}
	id := identity.NormalizeID(refID)

	a.mu.Lock()
	entry := a.entries[key]
	if !opts.Force && entry.Loading {
		a.mu.Unlock()
		return entry.Summary, nil
	}
	entry.Loading = true
	entry.Error = ""
	a.entries[key] = entry
	a.mu.Unlock()

	userID := identity.NormalizeID(opts.UserID)
	if userID == "" {
		userID = a.users.CurrentUserID()
	}

	s, err := a.api.Summary(ctx, refType, id, userID)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		apiErr := model.ToAPIError(err, msgFetchFailed)
		current := a.entries[key]
		current.Loading = false
		current.Error = apiErr.Message
		a.entries[key] = current
		a.logger.Warn("リアクション集計の取得に失敗しました",
			slog.String("ref_type", refType),
			slog.String("ref_id", id),
			slog.String("error", apiErr.Message),
		)
		return Summary{}, apiErr
	}

	a.entries[key] = State{Summary: s, LastFetchedAt: a.now()}
	return s, nil
}

// ToggleReaction は現在のユーザーのリアクションをトグルする。
//
// 送信前に楽観的な集計を適用し、成功時はサーバーの集計で置き換える。
// 失敗時はトグル直前のスナップショットに戻してエラーを返す。
// 参照が無効な場合、種類が未知の場合、未ログインの場合はリクエストせずにエラーを返す。
func (a *Aggregator) ToggleReaction(ctx context.Context, refType, refID, reaction string) (ToggleResult, error) {
	key := Key(refType, refID)
	if key == "" {
		return ToggleResult{}, model.NewMissingReferenceError(msgInvalidReference)
	}
	kind, ok := ParseKind(reaction)
	if !ok {
		return ToggleResult{}, model.NewInvalidReactionError()
	}
	userID := a.users.CurrentUserID()
	if userID == "" {
		return ToggleResult{}, model.NewUnauthenticatedError(msgUnauthenticated)
	}
	id := identity.NormalizeID(refID)

	a.mu.Lock()
	snapshot, existed := a.entries[key]
	a.entries[key] = State{
		Summary:       applyToggle(snapshot.Summary, kind),
		LastFetchedAt: snapshot.LastFetchedAt,
	}
	a.processing[key] = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.processing, key)
		a.mu.Unlock()
	}()

	result, err := a.api.Toggle(ctx, ToggleRequest{
		Tipo:           kind,
		TipoReferencia: refType,
		ReferenciaID:   id,
		UsuarioID:      userID,
	})

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		apiErr := model.ToAPIError(err, msgToggleFailed)
		restored := State{Error: apiErr.Message}
		if existed {
			restored.Summary = snapshot.Summary
			restored.LastFetchedAt = snapshot.LastFetchedAt
		}
		a.entries[key] = restored
		a.metrics.RecordReactionToggle(metrics.ToggleRolledBack)
		a.logger.Warn("リアクションをロールバックしました",
			slog.String("ref_type", refType),
			slog.String("ref_id", id),
			slog.String("reaction", string(kind)),
			slog.String("error", apiErr.Message),
		)
		return ToggleResult{}, apiErr
	}

	a.entries[key] = State{Summary: result.Summary, LastFetchedAt: a.now()}
	a.metrics.RecordReactionToggle(metrics.ToggleCommitted)
	return result, nil
}
