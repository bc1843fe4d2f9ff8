// Package news はニュース記事のキャッシュと、日付順に並べた表示用ビューを提供する。
package news

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hitoshi/pinkmuse/internal/identity"
)

// Article はAPIから受け取ったニュース記事。元のJSONはRawに保持する。
type Article struct {
	ID               string // _id または id を正規化した値
	Title            string // titulo
	Date             string // fecha（未加工）
	CommentsEnabled  bool   // habilitacionComentarios（未指定は有効）
	ReactionsEnabled bool   // habilitacionAcciones（true または "si"、未指定は有効）
	Raw              json.RawMessage
}

// Parse は記事のJSONオブジェクトを解釈する。オブジェクトでない場合はfalseを返す。
func Parse(raw []byte) (Article, bool) {
	if !gjson.ValidBytes(raw) {
		return Article{}, false
	}
	obj := gjson.ParseBytes(raw)
	if !obj.IsObject() {
		return Article{}, false
	}

	id := identity.NormalizeResult(obj.Get("_id"))
	if id == "" {
		id = identity.NormalizeResult(obj.Get("id"))
	}

	a := Article{
		ID:               id,
		Date:             obj.Get("fecha").String(),
		CommentsEnabled:  flag(obj.Get("habilitacionComentarios")),
		ReactionsEnabled: flag(obj.Get("habilitacionAcciones")),
		Raw:              append(json.RawMessage(nil), obj.Raw...),
	}
	if t := obj.Get("titulo"); t.Type == gjson.String {
		a.Title = t.Str
	}
	return a, true
}

// ParseList はJSON配列から記事を取り出す。配列でない入力は空として扱う。
func ParseList(raw []byte) []Article {
	list := gjson.ParseBytes(raw)
	if !list.IsArray() {
		return []Article{}
	}
	out := make([]Article, 0, len(list.Array()))
	list.ForEach(func(_, value gjson.Result) bool {
		if a, ok := Parse([]byte(value.Raw)); ok {
			out = append(out, a)
		}
		return true
	})
	return out
}

// Key は正規化済みの_idまたはidを返す。
func (a Article) Key() string {
	return a.ID
}

// NaturalKey はタイトルを返す。
func (a Article) NaturalKey() string {
	return a.Title
}

// MarshalJSON は元のJSONをそのまま出力する。
func (a Article) MarshalJSON() ([]byte, error) {
	if len(a.Raw) > 0 {
		return a.Raw, nil
	}
	m := map[string]any{
		"habilitacionComentarios": a.CommentsEnabled,
	}
	if a.ID != "" {
		m["_id"] = a.ID
	}
	if a.Title != "" {
		m["titulo"] = a.Title
	}
	if a.Date != "" {
		m["fecha"] = a.Date
	}
	return json.Marshal(m)
}

// field は記事のJSONから任意のパスの値を取り出す。
func (a Article) field(path string) gjson.Result {
	return gjson.GetBytes(a.Raw, path)
}

// flag は有効・無効フラグを解釈する。未指定は有効とみなす。
func flag(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null:
		return true
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.String:
		s := strings.ToLower(strings.TrimSpace(v.Str))
		return s == "si" || s == "sí" || s == "true" || s == "1"
	case gjson.Number:
		return v.Num != 0
	}
	return true
}
