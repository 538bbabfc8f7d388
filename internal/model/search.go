package model

import "time"

// SearchRecord はエピソード単位の検索インデックスレコード。
// Keywordsは常にインデクサが導出し、再構築時は丸ごと置き換える。
type SearchRecord struct {
	PodcastID     string
	EpisodeNumber int
	Keywords      []string
	CreatedAt     time.Time
	EpisodeDate   time.Time
}

// SearchResult は検索結果としてのポッドキャストとエピソード一覧。
// Episodesは公開日時の降順に並ぶ。
type SearchResult struct {
	Podcasts []*Podcast
	Episodes []*Episode
}
