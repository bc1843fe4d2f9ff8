// Package security はAPIから受け取ったニュース本文のHTMLを表示前に無害化する。
// 許可リスト方式のポリシーで安全なタグのみを残す。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer はコンテンツの無害化を行う。
type ContentSanitizer interface {
	// Sanitize はニュース本文のHTMLから許可されていない要素と属性を取り除く。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

type contentSanitizer struct {
	article *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerの新しいインスタンスを生成する。
// ニュース本文のポリシー:
//   - 許可タグ: p, br, h2, h3, h4, ul, ol, li, blockquote, strong, em, u, s, a, img, figure, figcaption
//   - aのhrefは絶対URLのみ。target="_blank" と rel="noopener noreferrer" を付与
//   - imgのsrcはhttpsのみ
func NewContentSanitizer() ContentSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "h2", "h3", "h4",
		"ul", "ol", "li", "blockquote",
		"strong", "em", "u", "s",
		"figure", "figcaption",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.RequireNoFollowOnFullyQualifiedLinks(false)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(*url.URL) bool { return true })
	p.AllowURLSchemeWithCustomPolicy("mailto", func(*url.URL) bool { return true })

	return &contentSanitizer{article: p}
}

func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.article.Sanitize(rawHTML)
}
