package model

import (
	"strings"
	"time"
)

// TranscriptWord は文字起こし結果の1単語を表す。
type TranscriptWord struct {
	Text         string  `json:"text"`
	StartSeconds float64 `json:"start_in_sec"`
	Confidence   float64 `json:"confidence"`
}

// Transcript はエピソードの文字起こし結果と要約を表す。
// (PodcastID, EpisodeNumber) ごとに1件のみ存在する。
type Transcript struct {
	PodcastID      string
	EpisodeNumber  int
	Words          []TranscriptWord
	Successful     bool
	Status         string
	ProviderID     string
	RawPayload     []byte
	SummaryTLDR    string
	SummaryBullets string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Text は全単語をスペース区切りで連結した本文を返す。
func (t *Transcript) Text() string {
	parts := make([]string, 0, len(t.Words))
	for _, w := range t.Words {
		parts = append(parts, w.Text)
	}
	return strings.Join(parts, " ")
}

// HasSummary は要約が生成済みかどうかを返す。
func (t *Transcript) HasSummary() bool {
	return t.SummaryTLDR != ""
}

// Sentence は単語列を文単位にまとめたもの。
type Sentence struct {
	StartSeconds float64
	Words        []TranscriptWord
}

// Text は文の本文を返す。
func (s Sentence) Text() string {
	parts := make([]string, 0, len(s.Words))
	for _, w := range s.Words {
		parts = append(parts, w.Text)
	}
	return strings.Join(parts, " ")
}
