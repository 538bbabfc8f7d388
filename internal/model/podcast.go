// Package model はドメインモデルを定義する。
package model

import "time"

// Podcast はRSSフィードから登録されたポッドキャストを表す。
// IDはタイトルから導出されるスラッグで、同一タイトルのフィードは同じIDになる。
// 任意項目は空文字列を「値なし」として扱い、DBにはNULLとして保存する。
type Podcast struct {
	ID                string
	Title             string
	Description       string
	Subtitle          string
	Category          string
	ImageURL          string
	WebsiteURL        string
	RSSURL            string
	LatestRSSETag     string
	LatestRSSModified string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Episode はポッドキャストの1エピソードを表す。
// 重複判定は (PodcastID, GUID) または (PodcastID, EpisodeNumber) のいずれかの一致で行う。
type Episode struct {
	PodcastID     string
	EpisodeNumber int
	GUID          string
	Title         string
	PublishedAt   time.Time
	EpisodeURL    string

	EnclosureURL         string
	EnclosureType        string
	EnclosureLengthBytes int64

	Description string
	// Summary はDescriptionと同一の場合は空になる。
	Summary         string
	Tags            []string
	Explicit        bool
	DurationSeconds int
	DurationText    string

	CreatedAt time.Time
}

// PodcastImage はポッドキャストのカバー画像のキャッシュを表す。
type PodcastImage struct {
	PodcastID string
	ImageURL  string
	Content   []byte
	MimeType  string
	CreatedAt time.Time
}
