package feed

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/hitoshi/podscribe/internal/model"
)

var (
	// ErrNoFeedRoot はドキュメントがRSS/Atomとして解析できない場合のエラー。
	ErrNoFeedRoot = errors.New("RSS/Atomフィードとして解析できません")
	// ErrMissingTitle はチャンネルタイトルが空の場合のエラー。
	ErrMissingTitle = errors.New("フィードにタイトルがありません")
	// ErrNoItems はチャンネルにエピソードが1件もない場合のエラー。
	ErrNoItems = errors.New("フィードにエピソードがありません")
)

// pubDateLayouts は公開日時の解析に使用するレイアウト。数値タイムゾーン形式を先に試す。
var pubDateLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

// NormalizedFeed は正規化済みのポッドキャストとエピソード一覧。
type NormalizedFeed struct {
	Podcast  *model.Podcast
	Episodes []*model.Episode
}

// channelExtractor はチャンネルから値を1つ取り出す抽出戦略。
type channelExtractor func(f *gofeed.Feed) string

// itemExtractor はアイテムから値を1つ取り出す抽出戦略。
type itemExtractor func(it *gofeed.Item) string

// channelField はチャンネル項目ごとの抽出戦略の並び。
type channelField struct {
	name       string
	strategies []channelExtractor
	assign     func(p *model.Podcast, v string)
}

// channelFields はポッドキャスト項目のフォールバック表。先頭から試し、最初の空でない値を採用する。
var channelFields = []channelField{
	{
		name: "description",
		strategies: []channelExtractor{
			func(f *gofeed.Feed) string { return f.Description },
			func(f *gofeed.Feed) string { return itunesFeed(f).Summary },
			func(f *gofeed.Feed) string { return extValue(f.Extensions, "itunes", "summary") },
		},
		assign: func(p *model.Podcast, v string) { p.Description = v },
	},
	{
		name: "subtitle",
		strategies: []channelExtractor{
			func(f *gofeed.Feed) string { return itunesFeed(f).Subtitle },
			func(f *gofeed.Feed) string { return extValue(f.Extensions, "itunes", "subtitle") },
		},
		assign: func(p *model.Podcast, v string) { p.Subtitle = v },
	},
	{
		name: "category",
		strategies: []channelExtractor{
			func(f *gofeed.Feed) string {
				for _, c := range itunesFeed(f).Categories {
					if c != nil && strings.TrimSpace(c.Text) != "" {
						return c.Text
					}
				}
				return ""
			},
			func(f *gofeed.Feed) string { return extAttr(f.Extensions, "itunes", "category", "text") },
			func(f *gofeed.Feed) string {
				if len(f.Categories) > 0 {
					return f.Categories[0]
				}
				return ""
			},
		},
		assign: func(p *model.Podcast, v string) { p.Category = v },
	},
	{
		name: "image",
		strategies: []channelExtractor{
			func(f *gofeed.Feed) string { return itunesFeed(f).Image },
			func(f *gofeed.Feed) string { return extAttr(f.Extensions, "itunes", "image", "href") },
			func(f *gofeed.Feed) string {
				if f.Image != nil {
					return f.Image.URL
				}
				return ""
			},
		},
		assign: func(p *model.Podcast, v string) { p.ImageURL = v },
	},
	{
		name: "website",
		strategies: []channelExtractor{
			func(f *gofeed.Feed) string { return f.Link },
			func(f *gofeed.Feed) string {
				for _, l := range f.Links {
					if strings.TrimSpace(l) != "" && l != f.FeedLink {
						return l
					}
				}
				return ""
			},
		},
		assign: func(p *model.Podcast, v string) { p.WebsiteURL = strings.TrimRight(v, "/") },
	},
}

// itemFields はエピソードの文字列項目のフォールバック表。
var itemFields = map[string][]itemExtractor{
	"guid": {
		func(it *gofeed.Item) string { return it.GUID },
		func(it *gofeed.Item) string { return it.Link },
		func(it *gofeed.Item) string {
			if len(it.Enclosures) > 0 && it.Enclosures[0] != nil {
				return it.Enclosures[0].URL
			}
			return ""
		},
	},
	"episode": {
		func(it *gofeed.Item) string { return itunesItem(it).Episode },
		func(it *gofeed.Item) string { return extValue(it.Extensions, "itunes", "episode") },
	},
	"description": {
		func(it *gofeed.Item) string { return it.Description },
		func(it *gofeed.Item) string { return it.Content },
	},
	"summary": {
		func(it *gofeed.Item) string { return itunesItem(it).Summary },
		func(it *gofeed.Item) string { return extValue(it.Extensions, "itunes", "summary") },
	},
	"link": {
		func(it *gofeed.Item) string { return it.Link },
	},
	"duration": {
		func(it *gofeed.Item) string { return itunesItem(it).Duration },
		func(it *gofeed.Item) string { return extValue(it.Extensions, "itunes", "duration") },
	},
	"keywords": {
		func(it *gofeed.Item) string { return itunesItem(it).Keywords },
		func(it *gofeed.Item) string { return extValue(it.Extensions, "itunes", "keywords") },
	},
	"explicit": {
		func(it *gofeed.Item) string { return itunesItem(it).Explicit },
		func(it *gofeed.Item) string { return extValue(it.Extensions, "itunes", "explicit") },
	},
}

// firstChannelValue は抽出戦略を順に試し、最初の空でない値をトリムして返す。
func firstChannelValue(f *gofeed.Feed, strategies []channelExtractor) string {
	for _, s := range strategies {
		if v := strings.TrimSpace(s(f)); v != "" {
			return v
		}
	}
	return ""
}

func firstItemValue(it *gofeed.Item, field string) string {
	for _, s := range itemFields[field] {
		if v := strings.TrimSpace(s(it)); v != "" {
			return v
		}
	}
	return ""
}

// Normalizer はRSS/Atomドキュメントを正規化済みのポッドキャストとエピソードに変換する。
type Normalizer struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewNormalizer はNormalizerの新しいインスタンスを生成する。
func NewNormalizer(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger, now: time.Now}
}

// Normalize はフィードドキュメントを解析して正規化する。
// タイトルがない、ルート要素がない、アイテムがない場合はエラーを返す。
// エピソード番号や公開日時を解釈できないアイテムはログ出力してスキップする。
func (n *Normalizer) Normalize(doc []byte, sourceURL, etag string) (*NormalizedFeed, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFeedRoot, err)
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		return nil, ErrMissingTitle
	}
	if len(parsed.Items) == 0 {
		return nil, ErrNoItems
	}

	now := n.now()
	podcast := &model.Podcast{
		ID:                Slugify(title),
		Title:             title,
		RSSURL:            strings.TrimRight(strings.TrimSpace(sourceURL), "/"),
		LatestRSSETag:     strings.TrimSpace(etag),
		LatestRSSModified: now.UTC().Format(http.TimeFormat),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, field := range channelFields {
		field.assign(podcast, firstChannelValue(parsed, field.strategies))
	}

	episodes := make([]*model.Episode, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		ep, ok := n.normalizeItem(podcast.ID, item, now)
		if !ok {
			continue
		}
		episodes = append(episodes, ep)
	}

	return &NormalizedFeed{Podcast: podcast, Episodes: episodes}, nil
}

// normalizeItem は1アイテムをエピソードに変換する。スキップすべき場合はfalseを返す。
func (n *Normalizer) normalizeItem(podcastID string, item *gofeed.Item, now time.Time) (*model.Episode, bool) {
	title := strings.TrimSpace(item.Title)

	numberText := firstItemValue(item, "episode")
	if numberText == "" {
		n.logger.Info("エピソード番号がないためスキップします",
			slog.String("podcast_id", podcastID),
			slog.String("title", title),
		)
		return nil, false
	}
	number, err := strconv.Atoi(numberText)
	if err != nil {
		n.logger.Warn("エピソード番号を解釈できないためスキップします",
			slog.String("podcast_id", podcastID),
			slog.String("title", title),
			slog.String("episode", numberText),
		)
		return nil, false
	}

	published, ok := parsePubDate(item.Published)
	if !ok {
		n.logger.Warn("公開日時を解釈できないためスキップします",
			slog.String("podcast_id", podcastID),
			slog.Int("episode_number", number),
			slog.String("pub_date", item.Published),
		)
		return nil, false
	}

	description := firstItemValue(item, "description")
	summary := firstItemValue(item, "summary")
	if summary == description {
		summary = ""
	}

	durationText := firstItemValue(item, "duration")

	ep := &model.Episode{
		PodcastID:       podcastID,
		EpisodeNumber:   number,
		GUID:            firstItemValue(item, "guid"),
		Title:           title,
		PublishedAt:     published,
		EpisodeURL:      firstItemValue(item, "link"),
		Description:     description,
		Summary:         summary,
		Tags:            parseTags(firstItemValue(item, "keywords")),
		Explicit:        parseExplicit(firstItemValue(item, "explicit")),
		DurationText:    durationText,
		DurationSeconds: ParseDurationSeconds(durationText),
		CreatedAt:       now,
	}

	if enc := firstAudioEnclosure(item.Enclosures); enc != nil {
		ep.EnclosureURL = strings.TrimSpace(enc.URL)
		ep.EnclosureType = strings.TrimSpace(enc.Type)
		ep.EnclosureLengthBytes = parseLength(enc.Length)
	}

	return ep, true
}

// parsePubDate はRFC 2822形式の日時を、数値タイムゾーン形式、名前付きタイムゾーン形式の順に解析する。
func parsePubDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func firstAudioEnclosure(encs []*gofeed.Enclosure) *gofeed.Enclosure {
	for _, e := range encs {
		if e != nil && strings.Contains(strings.ToLower(e.Type), "audio") {
			return e
		}
	}
	return nil
}

// parseLength はバイト長を解析する。解釈できない場合は0を返す。
func parseLength(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseTags はカンマ区切りのキーワードをトリム・小文字化したタグ一覧に変換する。
func parseTags(raw string) []string {
	if raw == "" {
		return []string{}
	}
	tags := make([]string, 0)
	for _, t := range strings.Split(raw, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func parseExplicit(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "true":
		return true
	}
	return false
}

// FilterNew は登録済みのGUIDまたはエピソード番号に一致するエピソードを除外する。
// バッチ内の重複も除外する。空のGUIDは照合に使わない。
func FilterNew(episodes []*model.Episode, guids map[string]struct{}, numbers map[int]struct{}) []*model.Episode {
	seenGUIDs := make(map[string]struct{}, len(guids)+len(episodes))
	for g := range guids {
		seenGUIDs[g] = struct{}{}
	}
	seenNumbers := make(map[int]struct{}, len(numbers)+len(episodes))
	for n := range numbers {
		seenNumbers[n] = struct{}{}
	}

	fresh := make([]*model.Episode, 0, len(episodes))
	for _, ep := range episodes {
		if ep.GUID != "" {
			if _, ok := seenGUIDs[ep.GUID]; ok {
				continue
			}
		}
		if _, ok := seenNumbers[ep.EpisodeNumber]; ok {
			continue
		}
		if ep.GUID != "" {
			seenGUIDs[ep.GUID] = struct{}{}
		}
		seenNumbers[ep.EpisodeNumber] = struct{}{}
		fresh = append(fresh, ep)
	}
	return fresh
}

func itunesFeed(f *gofeed.Feed) *ext.ITunesFeedExtension {
	if f.ITunesExt == nil {
		return &ext.ITunesFeedExtension{}
	}
	return f.ITunesExt
}

func itunesItem(it *gofeed.Item) *ext.ITunesItemExtension {
	if it.ITunesExt == nil {
		return &ext.ITunesItemExtension{}
	}
	return it.ITunesExt
}

// extValue は名前空間拡張要素のテキストを返す。
// iTunes拡張として認識されなかった要素を拾うための補助。
func extValue(exts ext.Extensions, ns, name string) string {
	for _, e := range exts[ns][name] {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

func extAttr(exts ext.Extensions, ns, name, attr string) string {
	for _, e := range exts[ns][name] {
		if v := strings.TrimSpace(e.Attrs[attr]); v != "" {
			return v
		}
	}
	return ""
}
