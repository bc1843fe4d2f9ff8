package news

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/pinkmuse/internal/apiclient"
	"github.com/hitoshi/pinkmuse/internal/identity"
)

const newsPath = "/noticias"

// API はニュースのリモートエンドポイント。記事はタイトルで指定する。
// Get/Create/Update/Deleteはレスポンスにdataがない場合falseを返す。
type API interface {
	List(ctx context.Context) ([]Article, error)
	Get(ctx context.Context, title string) (Article, bool, error)
	Create(ctx context.Context, payload json.RawMessage) (Article, bool, error)
	Update(ctx context.Context, title string, payload json.RawMessage) (Article, bool, error)
	Delete(ctx context.Context, title string) (Article, bool, error)
}

// HTTPAPI はapiclient経由でAPIを実装する。
type HTTPAPI struct {
	client *apiclient.Client
}

// NewHTTPAPI はHTTPAPIの新しいインスタンスを生成する。
func NewHTTPAPI(client *apiclient.Client) *HTTPAPI {
	return &HTTPAPI{client: client}
}

func (a *HTTPAPI) List(ctx context.Context) ([]Article, error) {
	env, err := a.client.Get(ctx, newsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("ニュース一覧の取得に失敗しました: %w", err)
	}
	return ParseList(env.Data), nil
}

func (a *HTTPAPI) Get(ctx context.Context, title string) (Article, bool, error) {
	env, err := a.client.Get(ctx, itemPath(title), nil)
	if err != nil {
		return Article{}, false, fmt.Errorf("ニュースの取得に失敗しました: %w", err)
	}
	art, ok := Parse(env.Data)
	return art, ok, nil
}

func (a *HTTPAPI) Create(ctx context.Context, payload json.RawMessage) (Article, bool, error) {
	env, err := a.client.Post(ctx, newsPath, payload)
	if err != nil {
		return Article{}, false, fmt.Errorf("ニュースの作成に失敗しました: %w", err)
	}
	art, ok := Parse(env.Data)
	return art, ok, nil
}

func (a *HTTPAPI) Update(ctx context.Context, title string, payload json.RawMessage) (Article, bool, error) {
	env, err := a.client.Put(ctx, itemPath(title), payload)
	if err != nil {
		return Article{}, false, fmt.Errorf("ニュースの更新に失敗しました: %w", err)
	}
	art, ok := Parse(env.Data)
	return art, ok, nil
}

func (a *HTTPAPI) Delete(ctx context.Context, title string) (Article, bool, error) {
	env, err := a.client.Delete(ctx, itemPath(title))
	if err != nil {
		return Article{}, false, fmt.Errorf("ニュースの削除に失敗しました: %w", err)
	}
	art, ok := Parse(env.Data)
	return art, ok, nil
}

func itemPath(title string) string {
	return newsPath + "/" + identity.EncodeComponent(title)
}
