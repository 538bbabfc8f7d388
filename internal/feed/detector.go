// Package feed はポッドキャストフィードの取得・正規化・登録を提供する。
package feed

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// FeedType はフィードの種類（RSS/Atom）を表す。
type FeedType string

const (
	// FeedTypeRSS はRSSフィード。
	FeedTypeRSS FeedType = "rss"
	// FeedTypeAtom はAtomフィード。
	FeedTypeAtom FeedType = "atom"
)

// FeedCandidate はHTMLから検出されたフィード候補を表す。
type FeedCandidate struct {
	URL      string
	FeedType FeedType
	Title    string
}

// IsHTML はContent-Typeがtext/htmlかどうかを判定する。
func IsHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.HasPrefix(strings.ToLower(mediaType), "text/html")
}

// FindFeedLinks はHTMLのheadタグから rel="alternate" のRSS/Atomリンクを検出する。
// 相対URLはpageURLを基準に絶対URLへ解決する。
func FindFeedLinks(htmlBody []byte, pageURL string) []FeedCandidate {
	var candidates []FeedCandidate

	base, err := url.Parse(pageURL)
	if err != nil {
		return candidates
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return candidates

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "head" {
				inHead = true
				continue
			}
			if tagName == "body" {
				return candidates
			}
			if !inHead || tagName != "link" || !hasAttr {
				continue
			}

			var rel, linkType, href, title string
			for {
				key, val, more := tokenizer.TagAttr()
				v := string(val)
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(strings.TrimSpace(v))
				case "type":
					linkType = strings.ToLower(strings.TrimSpace(v))
				case "href":
					href = strings.TrimSpace(v)
				case "title":
					title = v
				}
				if !more {
					break
				}
			}

			if rel != "alternate" || href == "" {
				continue
			}

			var feedType FeedType
			switch linkType {
			case "application/rss+xml":
				feedType = FeedTypeRSS
			case "application/atom+xml":
				feedType = FeedTypeAtom
			default:
				continue
			}

			resolved := resolveURL(base, href)
			if resolved == "" {
				continue
			}
			candidates = append(candidates, FeedCandidate{URL: resolved, FeedType: feedType, Title: title})

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "head" {
				return candidates
			}
		}
	}
}

// SelectFeedLink は候補から最初のRSSリンクを選ぶ。RSSがない場合は最初のAtomリンクを返す。
func SelectFeedLink(candidates []FeedCandidate) *FeedCandidate {
	for i := range candidates {
		if candidates[i].FeedType == FeedTypeRSS {
			return &candidates[i]
		}
	}
	for i := range candidates {
		if candidates[i].FeedType == FeedTypeAtom {
			return &candidates[i]
		}
	}
	return nil
}

func resolveURL(base *url.URL, rawRef string) string {
	ref, err := url.Parse(rawRef)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// NormalizeInputURL は入力URLをトリムし、スキームがない場合は https:// を付与する。
func NormalizeInputURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + raw
	}
	return raw
}
