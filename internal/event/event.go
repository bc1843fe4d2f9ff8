// Package event はイベント一覧のキャッシュと、日付による「今後／過去」の分割を提供する。
package event

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hitoshi/pinkmuse/internal/identity"
)

// Event はAPIから受け取ったイベント。
// 比較と並べ替えに使う項目のみを取り出し、元のJSONはRawに保持する。
type Event struct {
	ID   string // _id または id を正規化した値
	Name string // nombreEvento
	Slug string
	Date string // fecha（未加工）
	Raw  json.RawMessage
}

// Parse はイベントのJSONオブジェクトを解釈する。オブジェクトでない場合はfalseを返す。
func Parse(raw []byte) (Event, bool) {
	if !gjson.ValidBytes(raw) {
		return Event{}, false
	}
	obj := gjson.ParseBytes(raw)
	if !obj.IsObject() {
		return Event{}, false
	}

	id := identity.NormalizeResult(obj.Get("_id"))
	if id == "" {
		id = identity.NormalizeResult(obj.Get("id"))
	}

	var date string
	if f := obj.Get("fecha"); f.Type == gjson.String {
		date = f.Str
	}

	return Event{
		ID:   id,
		Name: stringField(obj, "nombreEvento"),
		Slug: stringField(obj, "slug"),
		Date: date,
		Raw:  append(json.RawMessage(nil), obj.Raw...),
	}, true
}

// ParseList はJSON配列からイベントを取り出す。配列でない入力は空として扱い、
// オブジェクトでない要素は読み飛ばす。
func ParseList(raw []byte) []Event {
	list := gjson.ParseBytes(raw)
	if !list.IsArray() {
		return []Event{}
	}
	out := make([]Event, 0, len(list.Array()))
	list.ForEach(func(_, value gjson.Result) bool {
		if ev, ok := Parse([]byte(value.Raw)); ok {
			out = append(out, ev)
		}
		return true
	})
	return out
}

// Key は _id、id、nombreEvento、slug の順で最初に得られた値を返す。
func (e Event) Key() string {
	for _, v := range []string{e.ID, e.Name, e.Slug} {
		if v != "" {
			return v
		}
	}
	return ""
}

// NaturalKey はイベント名を返す。
func (e Event) NaturalKey() string {
	return e.Name
}

// MarshalJSON は元のJSONをそのまま出力する。
func (e Event) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	m := map[string]string{}
	if e.ID != "" {
		m["_id"] = e.ID
	}
	if e.Name != "" {
		m["nombreEvento"] = e.Name
	}
	if e.Slug != "" {
		m["slug"] = e.Slug
	}
	if e.Date != "" {
		m["fecha"] = e.Date
	}
	return json.Marshal(m)
}

func stringField(obj gjson.Result, path string) string {
	v := obj.Get(path)
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.Str)
}
