package handler

import (
	"fmt"
	"time"

	"github.com/hitoshi/podscribe/internal/ai"
	"github.com/hitoshi/podscribe/internal/model"
)

// podcastResponse はポッドキャスト情報のAPIレスポンス。
type podcastResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Subtitle    string    `json:"subtitle,omitempty"`
	Description string    `json:"description"`
	Category    string    `json:"category,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	WebsiteURL  string    `json:"website_url,omitempty"`
	RSSURL      string    `json:"rss_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toPodcastResponse(p *model.Podcast) podcastResponse {
	return podcastResponse{
		ID:          p.ID,
		Title:       p.Title,
		Subtitle:    p.Subtitle,
		Description: p.Description,
		Category:    p.Category,
		ImageURL:    p.ImageURL,
		WebsiteURL:  p.WebsiteURL,
		RSSURL:      p.RSSURL,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toPodcastResponses(podcasts []*model.Podcast) []podcastResponse {
	out := make([]podcastResponse, 0, len(podcasts))
	for _, p := range podcasts {
		out = append(out, toPodcastResponse(p))
	}
	return out
}

// episodeResponse はエピソード情報のAPIレスポンス。
type episodeResponse struct {
	PodcastID       string    `json:"podcast_id"`
	EpisodeNumber   int       `json:"episode_number"`
	Title           string    `json:"title"`
	PublishedAt     time.Time `json:"published_at"`
	EpisodeURL      string    `json:"episode_url,omitempty"`
	AudioURL        string    `json:"audio_url"`
	AudioType       string    `json:"audio_type,omitempty"`
	Description     string    `json:"description"`
	Summary         string    `json:"summary,omitempty"`
	Tags            []string  `json:"tags"`
	Explicit        bool      `json:"explicit"`
	DurationSeconds int       `json:"duration_seconds"`
	Duration        string    `json:"duration"`
}

func toEpisodeResponse(ep *model.Episode) episodeResponse {
	tags := ep.Tags
	if tags == nil {
		tags = []string{}
	}
	return episodeResponse{
		PodcastID:       ep.PodcastID,
		EpisodeNumber:   ep.EpisodeNumber,
		Title:           ep.Title,
		PublishedAt:     ep.PublishedAt,
		EpisodeURL:      ep.EpisodeURL,
		AudioURL:        ep.EnclosureURL,
		AudioType:       ep.EnclosureType,
		Description:     ep.Description,
		Summary:         ep.Summary,
		Tags:            tags,
		Explicit:        ep.Explicit,
		DurationSeconds: ep.DurationSeconds,
		Duration:        ep.DurationText,
	}
}

func toEpisodeResponses(episodes []*model.Episode) []episodeResponse {
	out := make([]episodeResponse, 0, len(episodes))
	for _, ep := range episodes {
		out = append(out, toEpisodeResponse(ep))
	}
	return out
}

// jobResponse はジョブ状態のAPIレスポンス。
type jobResponse struct {
	ID            string     `json:"id"`
	Action        string     `json:"action"`
	PodcastID     string     `json:"podcast_id"`
	EpisodeNumber int        `json:"episode_number"`
	Status        string     `json:"status"`
	IsFinished    bool       `json:"is_finished"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

func toJobResponse(j *model.Job) jobResponse {
	return jobResponse{
		ID:            j.ID,
		Action:        string(j.Action),
		PodcastID:     j.PodcastID,
		EpisodeNumber: j.EpisodeNumber,
		Status:        string(j.Status),
		IsFinished:    j.IsFinished,
		CreatedAt:     j.CreatedAt,
		StartedAt:     j.StartedAt,
		FinishedAt:    j.FinishedAt,
	}
}

// sentenceResponse は文字起こしの1文。
type sentenceResponse struct {
	Start     string  `json:"start"`
	StartSecs float64 `json:"start_in_sec"`
	Text      string  `json:"text"`
}

// transcriptResponse は文字起こしのAPIレスポンス。
type transcriptResponse struct {
	PodcastID     string             `json:"podcast_id"`
	EpisodeNumber int                `json:"episode_number"`
	Sentences     []sentenceResponse `json:"sentences"`
	WordCount     int                `json:"word_count"`
	CreatedAt     time.Time          `json:"created_at"`
}

func toTranscriptResponse(t *model.Transcript) transcriptResponse {
	sentences := ai.WordsToSentences(t.Words)
	out := make([]sentenceResponse, 0, len(sentences))
	for _, s := range sentences {
		out = append(out, sentenceResponse{
			Start:     formatTimestamp(s.StartSeconds),
			StartSecs: s.StartSeconds,
			Text:      s.Text(),
		})
	}
	return transcriptResponse{
		PodcastID:     t.PodcastID,
		EpisodeNumber: t.EpisodeNumber,
		Sentences:     out,
		WordCount:     len(t.Words),
		CreatedAt:     t.CreatedAt,
	}
}

// formatTimestamp は秒数を HH:MM:SS 形式に変換する。
func formatTimestamp(sec float64) string {
	total := int(sec)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}

// summaryResponse は要約のAPIレスポンス。
type summaryResponse struct {
	PodcastID     string `json:"podcast_id"`
	EpisodeNumber int    `json:"episode_number"`
	TLDR          string `json:"tldr"`
	Bullets       string `json:"bullets"`
}

// chatResponse はチャット回答のAPIレスポンス。
type chatResponse struct {
	PodcastID     string    `json:"podcast_id"`
	EpisodeNumber int       `json:"episode_number"`
	Question      string    `json:"question"`
	Answer        string    `json:"answer"`
	CreatedAt     time.Time `json:"created_at"`
}

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	LastLogin time.Time `json:"last_login"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}
