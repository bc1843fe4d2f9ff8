package comment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/hitoshi/pinkmuse/internal/apiclient"
	"github.com/hitoshi/pinkmuse/internal/identity"
)

// CreateRequest はPOST /noticias/{id}/comentarios のリクエストボディ。
type CreateRequest struct {
	Texto     string          `json:"texto"`
	UsuarioID string          `json:"usuario_id"`
	Fecha     string          `json:"fecha"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}

// API はコメントのリモートエンドポイント。
// 正規化はStore側で行うため、レスポンスのdataをそのまま返す。
type API interface {
	List(ctx context.Context, articleID, userID string) (json.RawMessage, error)
	Create(ctx context.Context, articleID string, req CreateRequest) (json.RawMessage, error)
	Delete(ctx context.Context, commentID string) error
}

// HTTPAPI はapiclient経由でAPIを実装する。
type HTTPAPI struct {
	client *apiclient.Client
}

// NewHTTPAPI はHTTPAPIの新しいインスタンスを生成する。
func NewHTTPAPI(client *apiclient.Client) *HTTPAPI {
	return &HTTPAPI{client: client}
}

func (a *HTTPAPI) List(ctx context.Context, articleID, userID string) (json.RawMessage, error) {
	var query url.Values
	if userID != "" {
		query = url.Values{"usuario_id": {userID}}
	}
	env, err := a.client.Get(ctx, threadPath(articleID), query)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return env.Data, nil
}

// Create はコメントを投稿する。dataがない場合はレスポンス全体を返す。
func (a *HTTPAPI) Create(ctx context.Context, articleID string, req CreateRequest) (json.RawMessage, error) {
	env, err := a.client.Post(ctx, threadPath(articleID), req)
	if err != nil {
		return nil, fmt.Errorf("コメントの投稿に失敗しました: %w", err)
	}
	return env.DataOrRaw(), nil
}

func (a *HTTPAPI) Delete(ctx context.Context, commentID string) error {
	if _, err := a.client.Delete(ctx, "/comentarios/"+identity.EncodeComponent(commentID)); err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}
	return nil
}

func threadPath(articleID string) string {
	return "/noticias/" + identity.EncodeComponent(articleID) + "/comentarios"
}
