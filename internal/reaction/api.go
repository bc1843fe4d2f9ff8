package reaction

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/hitoshi/pinkmuse/internal/apiclient"
	"github.com/hitoshi/pinkmuse/internal/identity"
)

// 参照種別
const (
	TypeNews    = "noticia"
	TypeComment = "comentario"
)

// ToggleRequest はPOST /reacciones のリクエストボディ。
type ToggleRequest struct {
	Tipo           Kind   `json:"tipo"`
	TipoReferencia string `json:"tipoReferencia"`
	ReferenciaID   string `json:"referencia_id"`
	UsuarioID      string `json:"usuario_id"`
}

// ToggleResult はトグル確定後の集計とサーバーのメッセージ。
type ToggleResult struct {
	Summary
	Message string `json:"message,omitempty"`
}

// API はリアクションのリモートエンドポイント。
type API interface {
	Summary(ctx context.Context, refType, refID, userID string) (Summary, error)
	Toggle(ctx context.Context, req ToggleRequest) (ToggleResult, error)
}

// HTTPAPI はapiclient経由でAPIを実装する。
type HTTPAPI struct {
	client *apiclient.Client
}

// NewHTTPAPI はHTTPAPIの新しいインスタンスを生成する。
func NewHTTPAPI(client *apiclient.Client) *HTTPAPI {
	return &HTTPAPI{client: client}
}

// Summary はGET /noticias/{id}/reacciones（記事）または
// GET /comentarios/{id}/reacciones（それ以外）を呼び出す。
func (a *HTTPAPI) Summary(ctx context.Context, refType, refID, userID string) (Summary, error) {
	var query url.Values
	if userID != "" {
		query = url.Values{"usuario_id": {userID}}
	}
	env, err := a.client.Get(ctx, summaryPath(refType, refID), query)
	if err != nil {
		return Summary{}, fmt.Errorf("リアクション集計の取得に失敗しました: %w", err)
	}
	return FormatSummary(gjson.ParseBytes(env.Data)), nil
}

// Toggle はPOST /reacciones を呼び出す。
// レスポンスのdata.userReactionが有効な種類であればdata.summary内の値より優先する。
func (a *HTTPAPI) Toggle(ctx context.Context, req ToggleRequest) (ToggleResult, error) {
	env, err := a.client.Post(ctx, "/reacciones", req)
	if err != nil {
		return ToggleResult{}, fmt.Errorf("リアクションの送信に失敗しました: %w", err)
	}
	data := gjson.ParseBytes(env.Data)
	s := FormatSummary(data.Get("summary"))
	if r := data.Get("userReaction"); r.Type == gjson.String {
		if k, ok := ParseKind(r.Str); ok {
			s.UserReaction = k
		}
	}
	return ToggleResult{Summary: s, Message: env.Message}, nil
}

func summaryPath(refType, refID string) string {
	if refType == TypeNews {
		return "/noticias/" + identity.EncodeComponent(refID) + "/reacciones"
	}
	return "/comentarios/" + identity.EncodeComponent(refID) + "/reacciones"
}
