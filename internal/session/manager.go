package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/pinkmuse/internal/apiclient"
	"github.com/hitoshi/pinkmuse/internal/model"
)

const (
	profilePath = "/usuario"
	logoutPath  = "/cerrarsesion"
)

// Manager はセッション境界（プロフィール再取得とログアウト）を担う。
// 各キャッシュはManagerを介さずSessionを読むだけで、セッションを書き換えるのはManagerのみ。
type Manager struct {
	session *Session
	client  *apiclient.Client
	logger  *slog.Logger
}

// NewManager はManagerの新しいインスタンスを生成する。
func NewManager(s *Session, client *apiclient.Client, logger *slog.Logger) *Manager {
	return &Manager{
		session: s,
		client:  client,
		logger:  logger,
	}
}

// Session は管理対象のSessionを返す。
func (m *Manager) Session() *Session {
	return m.session
}

// Refresh はプロフィールを再取得して識別情報を更新する。
// トークンがない場合は識別情報をクリアし、falseを返す。
// 401の場合はトークンと識別情報が破棄される（apiclientがInvalidateを呼ぶ）。
func (m *Manager) Refresh(ctx context.Context) (Identity, bool, error) {
	if m.session.Token() == "" {
		m.session.ClearUser()
		return Identity{}, false, nil
	}

	env, err := m.client.Get(ctx, profilePath, nil)
	if err != nil {
		if apiclient.IsStatus(err, http.StatusUnauthorized) {
			m.logger.Warn("セッションが無効になりました")
		}
		return Identity{}, false, model.ToAPIError(err, "No se pudo cargar tu perfil.")
	}

	ident, ok := m.session.SetUser(env.DataOrRaw())
	if ok {
		m.logger.Info("session refreshed", slog.String("user_id", ident.ID))
	}
	return ident, ok, nil
}

// Logout はサーバーへログアウトを通知し、結果にかかわらずローカルの認証情報を破棄する。
func (m *Manager) Logout(ctx context.Context) {
	if m.session.Token() != "" {
		if _, err := m.client.Post(ctx, logoutPath, nil); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("ログアウト通知に失敗しました", slog.String("error", err.Error()))
		}
	}
	m.session.Invalidate()
}
