package model

import "time"

// ChatQA はエピソードに対する質問と回答の記録。
// 同一の (PodcastID, EpisodeNumber, Prompt, Question) には同じ回答を再利用する。
type ChatQA struct {
	ID            string
	PodcastID     string
	EpisodeNumber int
	Email         string
	Prompt        string
	Question      string
	Answer        string
	CreatedAt     time.Time
}
