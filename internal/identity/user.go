package identity

import "github.com/tidwall/gjson"

// userIDPaths はユーザーオブジェクト内でIDが格納されうるフィールドの探索順。
var userIDPaths = []string{"id", "_id", "usuario_id", "user_id", "userId"}

// ExtractUserID はユーザーのJSON表現から正規化済みのユーザーIDを取り出す。
// 該当フィールドが見つからない場合は空文字列を返す。
func ExtractUserID(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return ""
	}
	user := gjson.ParseBytes(raw)
	if !user.IsObject() {
		return ""
	}
	for _, path := range userIDPaths {
		if id := NormalizeResult(user.Get(path)); id != "" {
			return id
		}
	}
	return ""
}
