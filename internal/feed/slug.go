package feed

import (
	"strings"
	"unicode"
)

// Slugify はタイトルからポッドキャストIDを導出する。
// 英数字と '.' 以外を区切りとみなし、連続する区切りを1つの '-' にまとめて小文字化する。
// 同じタイトルからは常に同じIDが得られる。
func Slugify(title string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '.' {
			return r
		}
		return ' '
	}, strings.TrimSpace(title))

	return strings.ToLower(strings.Join(strings.Fields(mapped), "-"))
}
