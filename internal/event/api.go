package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/pinkmuse/internal/apiclient"
	"github.com/hitoshi/pinkmuse/internal/identity"
)

const eventsPath = "/eventos"

// API はイベントのリモートエンドポイント。
// Get/Create/Updateはレスポンスにdataがない場合falseを返す。
type API interface {
	List(ctx context.Context) ([]Event, error)
	Get(ctx context.Context, name string) (Event, bool, error)
	Create(ctx context.Context, payload json.RawMessage) (Event, bool, error)
	Update(ctx context.Context, name string, payload json.RawMessage) (Event, bool, error)
	Delete(ctx context.Context, name string) error
}

// HTTPAPI はapiclient経由でAPIを実装する。
type HTTPAPI struct {
	client *apiclient.Client
}

// NewHTTPAPI はHTTPAPIの新しいインスタンスを生成する。
func NewHTTPAPI(client *apiclient.Client) *HTTPAPI {
	return &HTTPAPI{client: client}
}

// List はGET /eventos を呼び出す。
func (a *HTTPAPI) List(ctx context.Context) ([]Event, error) {
	env, err := a.client.Get(ctx, eventsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("イベント一覧の取得に失敗しました: %w", err)
	}
	return ParseList(env.Data), nil
}

// Get はGET /eventos/{name} を呼び出す。
func (a *HTTPAPI) Get(ctx context.Context, name string) (Event, bool, error) {
	env, err := a.client.Get(ctx, itemPath(name), nil)
	if err != nil {
		return Event{}, false, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	ev, ok := Parse(env.Data)
	return ev, ok, nil
}

// Create はPOST /eventos を呼び出す。
func (a *HTTPAPI) Create(ctx context.Context, payload json.RawMessage) (Event, bool, error) {
	env, err := a.client.Post(ctx, eventsPath, payload)
	if err != nil {
		return Event{}, false, fmt.Errorf("イベントの作成に失敗しました: %w", err)
	}
	ev, ok := Parse(env.Data)
	return ev, ok, nil
}

// Update はPUT /eventos/{name} を呼び出す。
func (a *HTTPAPI) Update(ctx context.Context, name string, payload json.RawMessage) (Event, bool, error) {
	env, err := a.client.Put(ctx, itemPath(name), payload)
	if err != nil {
		return Event{}, false, fmt.Errorf("イベントの更新に失敗しました: %w", err)
	}
	ev, ok := Parse(env.Data)
	return ev, ok, nil
}

// Delete はDELETE /eventos/{name} を呼び出す。
func (a *HTTPAPI) Delete(ctx context.Context, name string) error {
	if _, err := a.client.Delete(ctx, itemPath(name)); err != nil {
		return fmt.Errorf("イベントの削除に失敗しました: %w", err)
	}
	return nil
}

func itemPath(name string) string {
	return eventsPath + "/" + identity.EncodeComponent(name)
}
