// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer は記事本文をHTMLとして表示する前にサニタイズし、
// フロントエンドがinnerHTMLで描画してもXSSにならないようにする。
// 保存済みの本文は書き換えず、レスポンス生成時に派生値として計算する。
package security

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// httpsOnly はimgのsrcに許可するURLパターン。
var httpsOnly = regexp.MustCompile(`^https://`)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// ContentSanitizer はbluemondayのポリシーを保持する。
// Policyはスレッドセーフなので複数のリクエストから共有できる。
type ContentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer は記事本文向けのポリシーでContentSanitizerを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, h2, h3, ul, ol, li, blockquote, pre, code, strong, em, a, img
//   - aのhref: http, https, mailto および相対URL。外部リンクにはtarget="_blank"とrel="noopener noreferrer"を付与
//   - imgのsrc: httpsのみ
//   - script, iframe, style, on*属性は許可リストに含まれないため除去される
func NewContentSanitizer() *ContentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "h2", "h3", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src").Matching(httpsOnly).OnElements("img")
	p.AllowAttrs("alt").OnElements("img")

	return &ContentSanitizer{policy: p}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *ContentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// compile-time interface check
var _ ContentSanitizerService = (*ContentSanitizer)(nil)
