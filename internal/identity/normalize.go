// Package identity はバックエンドごとに表現が揺れる識別子を、
// 比較可能な単一の文字列キーへ正規化する機能を提供する。
//
// 識別子の等価判定は必ずNormalizeIDの結果同士で行う。
// 生の値（文字列IDと {"$oid": ...} 形式の埋め込みオブジェクト）を直接比較してはならない。
package identity

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// objectPlaceholder は汎用文字列化で意味のある値が得られなかったことを示す文字列。
const objectPlaceholder = "[object Object]"

// NormalizeID は任意の識別子表現を比較用の文字列キーに変換する。
// 解決できない入力には空文字列を返し、決してpanicしない。
//
// オブジェクトの場合は $oid、_id（文字列）、_id（ネストしたオブジェクト）、id（文字列）の順に探索し、
// 最後に fmt.Stringer による文字列化を試みる。
func NormalizeID(raw any) (id string) {
	defer func() {
		if recover() != nil {
			id = ""
		}
	}()

	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return strings.TrimSpace(v.String())
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return formatFloat(float64(v))
	case float64:
		return formatFloat(v)
	case *big.Int:
		if v == nil {
			return ""
		}
		return v.String()
	case gjson.Result:
		return NormalizeResult(v)
	case map[string]any:
		return normalizeObject(v)
	case map[string]string:
		obj := make(map[string]any, len(v))
		for k, s := range v {
			obj[k] = s
		}
		return normalizeObject(obj)
	case fmt.Stringer:
		return stringify(v.String())
	}

	return ""
}

// NormalizeResult はgjsonで取り出した値をNormalizeIDと同じ規則で正規化する。
func NormalizeResult(r gjson.Result) string {
	if !r.Exists() {
		return ""
	}
	switch r.Type {
	case gjson.String:
		return strings.TrimSpace(r.Str)
	case gjson.Number:
		// 大きな整数の精度を保つため元のリテラルを優先する
		if r.Raw != "" && !strings.ContainsAny(r.Raw, ".eE") {
			return strings.TrimSpace(r.Raw)
		}
		return formatFloat(r.Num)
	case gjson.JSON:
		if r.IsObject() {
			obj, _ := r.Value().(map[string]any)
			return normalizeObject(obj)
		}
	}
	return ""
}

// Equal は2つの識別子が同一の論理エンティティを指すかを判定する。
// どちらかが解決できない場合はfalseを返す。
func Equal(a, b any) bool {
	na := NormalizeID(a)
	return na != "" && na == NormalizeID(b)
}

// componentUnescaper はQueryEscapeがエスケープするが、encodeURIComponentでは
// そのまま残す文字を元に戻す。空白は "+" ではなく "%20" にする。
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeComponent はURLパスの1セグメントとして安全に埋め込めるよう文字列をエスケープする。
// 英数字と - _ . ! ~ * ' ( ) 以外をUTF-8のパーセントエンコーディングにする。
func EncodeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}

// DecodeComponent はURLエンコードされた文字列をデコードする。
// デコードに失敗した場合は元の文字列をそのまま返す。
func DecodeComponent(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

func normalizeObject(obj map[string]any) string {
	if obj == nil {
		return ""
	}
	if oid, ok := obj["$oid"].(string); ok {
		return strings.TrimSpace(oid)
	}
	if id, ok := obj["_id"].(string); ok {
		return strings.TrimSpace(id)
	}
	if nested, ok := obj["_id"].(map[string]any); ok {
		if id := normalizeObject(nested); id != "" {
			return id
		}
	}
	if id, ok := obj["id"].(string); ok {
		return strings.TrimSpace(id)
	}
	return ""
}

func stringify(s string) string {
	s = strings.TrimSpace(s)
	if s == objectPlaceholder {
		return ""
	}
	return s
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
