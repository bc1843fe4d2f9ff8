// Package reaction は記事やコメントへのリアクション集計を保持し、
// 楽観的更新とロールバックを伴うトグル操作を提供する。
package reaction

import "encoding/json"

// Kind はリアクションの種類。空文字列は「リアクションなし」を表す。
type Kind string

const (
	Like    Kind = "like"
	Love    Kind = "love"
	Wow     Kind = "wow"
	Angry   Kind = "angry"
	Dislike Kind = "dislike"
)

// KindInfo は表示用のリアクション情報。
type KindInfo struct {
	Value       Kind   `json:"value"`
	Label       string `json:"label"`
	Emoji       string `json:"emoji"`
	Description string `json:"description"`
}

// Kinds は受け付けるリアクションの一覧（表示順）。
var Kinds = []KindInfo{
	{Like, "Me gusta", "\U0001F44D", "Expresa que te gusta el contenido."},
	{Love, "Me encanta", "\U0001F60D", "Muestra entusiasmo o carino por la publicacion."},
	{Wow, "Me sorprende", "\U0001F62E", "Indica asombro o sorpresa."},
	{Angry, "Me enoja", "\U0001F620", "Expresa molestia o indignacion."},
	{Dislike, "No me gusta", "\U0001F44E", "Permite mostrar desacuerdo con el contenido."},
}

// ParseKind は文字列がいずれかのリアクションであればそのKindを返す。
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case Like, Love, Wow, Angry, Dislike:
		return k, true
	}
	return "", false
}

// MarshalJSON は空のKindをnullとして出力する。
func (k Kind) MarshalJSON() ([]byte, error) {
	if k == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(k))
}
