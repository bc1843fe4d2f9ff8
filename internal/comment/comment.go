// Package comment は記事ごとのコメントスレッドのキャッシュを提供する。
package comment

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/hitoshi/pinkmuse/internal/identity"
	"github.com/hitoshi/pinkmuse/internal/locale"
	"github.com/hitoshi/pinkmuse/internal/reaction"
	"github.com/hitoshi/pinkmuse/internal/session"
)

const (
	defaultDisplayName = "Usuario PinkMuse"
	defaultInitials    = "UP"
	defaultRefType     = "noticia"

	// isoLayout はUTCのミリ秒付きISO 8601形式。
	isoLayout = "2006-01-02T15:04:05.000Z"
)

// User はコメント投稿者の表示用の情報。
type User struct {
	ID          string `json:"id"`
	Nombre      string `json:"nombre"`
	Apellido    string `json:"apellido"`
	DisplayName string `json:"displayName"`
	Correo      string `json:"correo"`
	Avatar      string `json:"avatar"`
	Rol         string `json:"rol"`
	Initials    string `json:"initials"`
}

// Comment は正規化済みのコメント。
type Comment struct {
	ID          string           `json:"id"`
	ReferenceID string           `json:"referenceId"`
	Type        string           `json:"type"`
	Text        string           `json:"text"`
	CreatedAt   string           `json:"createdAt,omitempty"`
	RawDate     string           `json:"rawDate,omitempty"`
	Meta        json.RawMessage  `json:"meta"`
	Reactions   reaction.Summary `json:"reactions"`
	User        *User            `json:"user"`

	// Date は日付を解釈できた場合のみ設定される。
	Date time.Time `json:"-"`
	// HasReactions はレスポンスに集計が埋め込まれていたかを示す。
	HasReactions bool `json:"-"`
}

// Normalize はAPIのコメント表現（フィールド名が揺れる）を正規化する。
// 投稿者が含まれない場合はfallbackを、それもなければautorを使う。
// オブジェクトでない入力にはfalseを返す。
func Normalize(v gjson.Result, fallback *User, loc *time.Location) (Comment, bool) {
	if !v.IsObject() {
		return Comment{}, false
	}

	c := Comment{
		ID:          firstID(v, "id", "_id"),
		ReferenceID: firstID(v, "referencia_id", "reference_id", "referenceId"),
		Type:        firstString(v, "tipoReferencia", "tipo_referencia", "type"),
		Text:        strings.TrimSpace(firstString(v, "texto", "text")),
		Meta:        json.RawMessage(`{}`),
	}
	if c.Type == "" {
		c.Type = defaultRefType
	}
	if m := v.Get("meta"); m.IsObject() {
		c.Meta = json.RawMessage(m.Raw)
	}

	c.Date, c.CreatedAt = parseDate(firstPresent(v, "fecha", "created_at", "createdAt", "rawDate", "created"), loc)
	c.RawDate = c.CreatedAt

	if r := v.Get("reactions"); r.IsObject() {
		c.Reactions = reaction.FormatSummary(r)
		c.HasReactions = true
	}

	c.User = normalizeUser(firstPresent(v, "usuario", "user"))
	if c.User == nil && fallback != nil {
		u := *fallback
		c.User = &u
	}
	if c.User == nil {
		c.User = normalizeUser(v.Get("autor"))
	}

	if c.ID == "" {
		prefix := c.ReferenceID
		if prefix == "" {
			prefix = "comentario"
		}
		c.ID = prefix + "-" + uuid.NewString()
	}
	return c, true
}

// UserFromIdentity はセッションの識別情報を投稿者の形式に変換する。
func UserFromIdentity(ident session.Identity) *User {
	if ident.ID == "" {
		return nil
	}
	name := strings.TrimSpace(ident.DisplayName)
	if name == "" {
		name = defaultDisplayName
	}
	return &User{
		ID:          ident.ID,
		Nombre:      ident.Nombre,
		Apellido:    ident.Apellido,
		DisplayName: name,
		Correo:      ident.Correo,
		Avatar:      ident.Avatar,
		Rol:         ident.Rol,
		Initials:    initials(name),
	}
}

func normalizeUser(v gjson.Result) *User {
	if !v.IsObject() {
		return nil
	}
	u := &User{
		ID:       firstID(v, "id", "_id", "usuario_id"),
		Nombre:   v.Get("nombre").String(),
		Apellido: v.Get("apellido").String(),
		Correo:   v.Get("correo").String(),
		Avatar:   v.Get("avatar").String(),
		Rol:      v.Get("rol").String(),
	}
	name := strings.TrimSpace(v.Get("displayName").String())
	if name == "" {
		name = strings.TrimSpace(strings.Join(nonEmpty(u.Nombre, u.Apellido), " "))
	}
	if name == "" {
		name = strings.TrimSpace(v.Get("username").String())
	}
	if name == "" {
		name = strings.TrimSpace(u.Correo)
	}
	if name == "" {
		name = defaultDisplayName
	}
	u.DisplayName = name
	u.Initials = initials(name)
	return u
}

// initials は先頭2語の頭文字を大文字で返す。
func initials(name string) string {
	parts := strings.Fields(name)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(string([]rune(p)[:1])))
	}
	if b.Len() == 0 {
		return defaultInitials
	}
	return b.String()
}

// parseDate は日付を解釈し、解釈できた時刻とISO形式の文字列を返す。
// 解釈できない文字列はそのまま返す。数値はUNIXミリ秒とみなす。
func parseDate(v gjson.Result, loc *time.Location) (time.Time, string) {
	switch v.Type {
	case gjson.String:
		if t, ok := locale.ParseTime(v.Str, loc); ok {
			return t, t.UTC().Format(isoLayout)
		}
		return time.Time{}, v.Str
	case gjson.Number:
		t := time.UnixMilli(v.Int())
		return t, t.UTC().Format(isoLayout)
	}
	return time.Time{}, ""
}

func firstID(v gjson.Result, paths ...string) string {
	for _, p := range paths {
		if id := identity.NormalizeResult(v.Get(p)); id != "" {
			return id
		}
	}
	return ""
}

func firstString(v gjson.Result, paths ...string) string {
	for _, p := range paths {
		if r := v.Get(p); r.Type == gjson.String && r.Str != "" {
			return r.Str
		}
	}
	return ""
}

// firstPresent はnullでない最初の値を返す。
func firstPresent(v gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if r := v.Get(p); r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

func nonEmpty(parts ...string) []string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
