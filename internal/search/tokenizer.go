// Package search はエピソード単位のキーワード索引の構築と検索を提供する。
//
// 索引と検索クエリは同じTokenizerを通すため、同じ語形の揺れは同じキーワードに正規化される。
package search

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

// DefaultLanguage は語幹抽出に使う既定の言語。
const DefaultLanguage = "english"

// stopWords は索引に含めない語。句読点はsplitで落ちるが、念のため同じ集合で弾く。
var stopWords = map[string]struct{}{
	"i": {}, "he": {}, "she": {}, "it": {}, "the": {}, "them": {}, "as": {}, "is": {},
	"um": {}, "ah": {}, "uh": {}, "like": {}, "also": {}, "an": {}, "and": {}, "to": {},
	"too": {}, "if": {}, "was": {}, "or": {},
	"?": {}, ".": {}, ",": {}, ":": {}, ";": {}, "!": {}, "`": {}, "/": {}, "=": {},
	"-": {}, "*": {}, "**": {}, "_": {}, "__": {}, "'": {}, "--": {}, "]": {}, "[": {},
}

// Tokenizer はテキストをキーワード集合に変換する。
// 言語の語幹抽出器を読み込めなかった場合はDisabledになり、常に空集合を返す。
type Tokenizer struct {
	language string
	disabled bool
}

// NewTokenizer は指定言語のTokenizerを生成する。
// snowballが対応していない言語の場合は無効なTokenizerを返す。
func NewTokenizer(language string) *Tokenizer {
	if language == "" {
		language = DefaultLanguage
	}
	t := &Tokenizer{language: language}
	if _, err := snowball.Stem("podcast", language, true); err != nil {
		t.disabled = true
	}
	return t
}

// Disabled は検索機能が無効かどうかを返す。
func (t *Tokenizer) Disabled() bool {
	return t == nil || t.disabled
}

// Language は語幹抽出に使う言語名を返す。
func (t *Tokenizer) Language() string {
	return t.language
}

// Keywords はテキストを小文字化して単語に分割し、ストップワードを除いた語幹の集合を返す。
func (t *Tokenizer) Keywords(text string) map[string]struct{} {
	keywords := make(map[string]struct{})
	if t.Disabled() {
		return keywords
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		stem, err := snowball.Stem(w, t.language, true)
		if err != nil {
			continue
		}
		stem = strings.TrimSpace(strings.ToLower(stem))
		if stem == "" {
			continue
		}
		if _, stop := stopWords[stem]; stop {
			continue
		}
		keywords[stem] = struct{}{}
	}
	return keywords
}

// SortedKeywords はKeywordsの結果を辞書順のスライスで返す。
func (t *Tokenizer) SortedKeywords(text string) []string {
	set := t.Keywords(text)
	list := make([]string, 0, len(set))
	for k := range set {
		list = append(list, k)
	}
	sort.Strings(list)
	return list
}
