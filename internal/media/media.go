// Package media はAPIが返す画像参照を表示可能なURLへ解決する。
package media

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	absoluteURL = regexp.MustCompile(`(?i)^https?://`)
	apiSuffix   = regexp.MustCompile(`/?api/?$`)
)

// ImageValue は画像フィールドの値から参照文字列を取り出す。
// 文字列はそのまま、配列は先頭要素、オブジェクトは webp, png, url, path の順に探す。
func ImageValue(v gjson.Result) string {
	switch {
	case v.Type == gjson.String:
		return v.Str
	case v.IsArray():
		arr := v.Array()
		if len(arr) == 0 {
			return ""
		}
		return ImageValue(arr[0])
	case v.IsObject():
		for _, key := range []string{"webp", "png", "url", "path"} {
			if s := v.Get(key); s.Type == gjson.String && s.Str != "" {
				return s.Str
			}
		}
	}
	return ""
}

// StorageBase はAPIのベースURLから末尾の /api を取り除いたストレージのベースURLを返す。
func StorageBase(apiBaseURL string) string {
	return strings.TrimRight(apiSuffix.ReplaceAllString(apiBaseURL, ""), "/")
}

// Resolver は相対パスの画像をストレージのURLへ解決する。
type Resolver struct {
	base string
}

// NewResolver はストレージのベースURLを持つResolverを生成する。baseは空でもよい。
func NewResolver(storageBase string) *Resolver {
	return &Resolver{base: strings.TrimRight(storageBase, "/")}
}

// URL は画像パスを表示用のURLにする。
// http(s)の絶対URLはそのまま返し、相対パスは /storage 配下として扱う。
func (r *Resolver) URL(path string) string {
	if path == "" {
		return ""
	}
	if absoluteURL.MatchString(path) {
		return path
	}
	normalized := normalizePath(path)
	if r == nil || r.base == "" {
		return normalized
	}
	if strings.HasPrefix(normalized, "/storage/") {
		return r.base + normalized
	}
	return r.base + "/storage" + normalized
}

func normalizePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if absoluteURL.MatchString(trimmed) || strings.HasPrefix(trimmed, "/") {
		return trimmed
	}
	return "/" + trimmed
}
