package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はエピソード説明文のHTMLを扱うインターフェース。
type ContentSanitizerService interface {
	// Sanitize はAPI応答用に安全なHTMLへ変換する。
	Sanitize(rawHTML string) string

	// PlainText はタグをすべて除去し、検索インデックス用のプレーンテキストを返す。
	PlainText(rawHTML string) string
}

// ContentSanitizer はbluemondayのポリシーを2種類保持する。
// bluemonday.Policyは構築後であれば並行利用できる。
type ContentSanitizer struct {
	display *bluemonday.Policy
	strict  *bluemonday.Policy
}

var _ ContentSanitizerService = (*ContentSanitizer)(nil)

// NewContentSanitizer は表示用と索引用のポリシーを構築する。
//
// 表示用ポリシーはポッドキャストのショーノートで使われる要素のみを許可する:
//   - 段落、改行、リスト、強調、引用、コード
//   - aタグのhrefはhttp/httpsの絶対URLのみ、target="_blank"とrel="noopener noreferrer"を付与
//   - 画像は許可しない（カバー画像は別エンドポイントで配信する）
func NewContentSanitizer() *ContentSanitizer {
	display := bluemonday.NewPolicy()
	display.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "b", "i",
	)
	display.AllowAttrs("href").OnElements("a")
	display.AllowURLSchemes("http", "https")
	display.AllowRelativeURLs(false)
	display.RequireParseableURLs(true)
	display.AddTargetBlankToFullyQualifiedLinks(true)
	display.RequireNoReferrerOnLinks(true)

	strict := bluemonday.StrictPolicy()
	strict.AddSpaceWhenStrippingTag(true)

	return &ContentSanitizer{display: display, strict: strict}
}

// Sanitize はHTMLを表示用ポリシーで無害化する。
func (s *ContentSanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.display.Sanitize(rawHTML)
}

// PlainText はタグを空白に置き換えて除去し、実体参照を戻して空白を1つに畳む。
func (s *ContentSanitizer) PlainText(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	text := html.UnescapeString(s.strict.Sanitize(rawHTML))
	return strings.Join(strings.Fields(text), " ")
}
