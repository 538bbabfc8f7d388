package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/podscribe/internal/model"
)

// PostgresTranscriptRepo はPostgreSQLを使用した文字起こしリポジトリ。
// 単語列はJSONB列に保存する。
type PostgresTranscriptRepo struct {
	db *sql.DB
}

// NewPostgresTranscriptRepo はPostgresTranscriptRepoを生成する。
func NewPostgresTranscriptRepo(db *sql.DB) *PostgresTranscriptRepo {
	return &PostgresTranscriptRepo{db: db}
}

// FindByEpisode は文字起こしを単語列込みで取得する。見つからない場合はnilを返す。
func (r *PostgresTranscriptRepo) FindByEpisode(ctx context.Context, podcastID string, episodeNumber int) (*model.Transcript, error) {
	t := &model.Transcript{}
	var words []byte
	var providerID, tldr, bullets sql.NullString
	var raw []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT podcast_id, episode_number, words, successful, status, provider_id, raw_payload,
		        summary_tldr, summary_bullets, created_at, updated_at
		 FROM transcripts WHERE podcast_id = $1 AND episode_number = $2`,
		podcastID, episodeNumber,
	).Scan(
		&t.PodcastID, &t.EpisodeNumber, &words, &t.Successful, &t.Status, &providerID, &raw,
		&tldr, &bullets, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("文字起こしの取得に失敗しました: %w", err)
	}

	if len(words) > 0 {
		if err := json.Unmarshal(words, &t.Words); err != nil {
			return nil, fmt.Errorf("文字起こし単語列のデコードに失敗しました: %w", err)
		}
	}
	t.ProviderID = nullStringValue(providerID)
	t.RawPayload = raw
	t.SummaryTLDR = nullStringValue(tldr)
	t.SummaryBullets = nullStringValue(bullets)
	return t, nil
}

// UpdatedAt は文字起こしの更新日時のみを取得する。存在しない場合はnilを返す。
func (r *PostgresTranscriptRepo) UpdatedAt(ctx context.Context, podcastID string, episodeNumber int) (*time.Time, error) {
	var at time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT updated_at FROM transcripts WHERE podcast_id = $1 AND episode_number = $2`,
		podcastID, episodeNumber,
	).Scan(&at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("文字起こし更新日時の取得に失敗しました: %w", err)
	}
	return &at, nil
}

// Create は文字起こしを作成する。
func (r *PostgresTranscriptRepo) Create(ctx context.Context, t *model.Transcript) error {
	words := t.Words
	if words == nil {
		words = []model.TranscriptWord{}
	}
	encoded, err := json.Marshal(words)
	if err != nil {
		return fmt.Errorf("文字起こし単語列のエンコードに失敗しました: %w", err)
	}

	var raw any
	if len(t.RawPayload) > 0 {
		raw = t.RawPayload
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO transcripts (podcast_id, episode_number, words, successful, status, provider_id,
		                          raw_payload, summary_tldr, summary_bullets, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.PodcastID, t.EpisodeNumber, encoded, t.Successful, t.Status, nullString(t.ProviderID),
		raw, nullString(t.SummaryTLDR), nullString(t.SummaryBullets), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("文字起こしの保存に失敗しました: %w", err)
	}
	return nil
}

// UpdateSummary は要約と更新日時を保存する。
func (r *PostgresTranscriptRepo) UpdateSummary(ctx context.Context, podcastID string, episodeNumber int, tldr, bullets string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transcripts SET summary_tldr = $3, summary_bullets = $4, updated_at = $5
		 WHERE podcast_id = $1 AND episode_number = $2`,
		podcastID, episodeNumber, nullString(tldr), nullString(bullets), at,
	)
	if err != nil {
		return fmt.Errorf("要約の保存に失敗しました: %w", err)
	}
	return nil
}

var _ TranscriptRepository = (*PostgresTranscriptRepo)(nil)
